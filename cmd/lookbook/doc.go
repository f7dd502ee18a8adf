// Command lookbook is the CLI for the lookbook daemon. It manages the
// garment catalog and style sources, drives photoshoot generation runs,
// and downloads finished bundles over the daemon's HTTP API.
package main

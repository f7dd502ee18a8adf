// Package prompt synthesizes the six canonical shot prompts for one
// garment and style pairing.
//
// Synthesize applies an ordered rule chain: hallucination guards for
// zippers and logos, footwear resolution, bottom-garment pants
// suppression, per-shot subject fallback, color emphasis on product
// shots, material bias suppression, and texture reinforcement, before
// composing the fixed per-shot templates. Rule order is load-bearing.
// The package performs no I/O.
package prompt

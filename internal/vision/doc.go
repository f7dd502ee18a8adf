// Package vision extracts structured garment attributes from product
// photos using the Gemini vision API.
package vision

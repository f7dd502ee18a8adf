// Package imagegen holds the image-generation provider clients: the
// Stable Diffusion WebUI txt2img client used by default and the OpenAI
// Images client serving gpt-image model overrides. A Selector routes per
// request on the model override.
package imagegen

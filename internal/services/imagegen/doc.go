// Package imagegen renders featured images through an HTTP image generation
// API and stores the result as a local asset.
//
// Both OpenAI-style responses (data[].url or data[].b64_json) and fal-style
// responses (images[].url) are understood.
package imagegen

// Package illustration implements the illustrate stage: it renders a
// featured image for a generated article, stores it under the assets
// directory and records it in the document header.
//
// The stage is non-fatal. When image generation is disabled or unconfigured
// it reports itself as disabled and leaves the document untouched.
package illustration

// Package generation implements the image-generation pipeline: request
// validation, job submission and polling against the inference API, output
// extraction, image materialization, and the blob-upload handoff.
package generation

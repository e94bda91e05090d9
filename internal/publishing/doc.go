// Package publishing implements the last three pipeline stages.
//
// The gate stage scores the working document with the quality package and
// records the score in the header and the tracker. The publish stage renders
// the document to HTML, writes the destination payload to the output
// directory and creates or updates the record in the destination CMS. The
// announce stage submits the public URL to the search-index endpoint.
//
// None of the handlers move documents between lifecycle directories; the
// workflow orchestrator owns those transitions.
package publishing

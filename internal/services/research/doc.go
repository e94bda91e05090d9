// Package research gathers competitor context for article generation.
//
// Search posts the keyword to a Firecrawl-compatible search endpoint and
// returns the top results. FetchPage downloads a result page and extracts its
// main text with go-readability, falling back to a goquery selector pass when
// readability yields nothing. Both calls share one token-bucket limiter and
// never fail the caller: errors are logged and an empty value is returned.
package research

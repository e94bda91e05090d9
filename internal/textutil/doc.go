// Package textutil provides the text helpers shared by the pipeline: slug
// generation, title casing, and token fingerprints used to rank related posts
// for internal linking.
package textutil

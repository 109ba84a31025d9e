// Package verdict is the module root. The service lives under internal/ and
// is started through cmd/verdict: a resolution is fanned out to a panel of
// LLM delegates over OpenRouter, every reply is normalized into an
// Intelligent or Idiotic vote, and the aggregated verdict is persisted,
// browsable, and streamed live.
package verdict

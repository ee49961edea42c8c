// Package scorer provides the sentiment scoring backend used by the batch
// scoring server. A Scorer takes an ordered batch of texts and returns one
// label/score Result per text, in the same order, from a single backend call.
//
// Features:
//   - OpenAI-backed financial sentiment classification with a JSON schema response
//   - Truncation and maximum-length policy applied per call
//   - Circuit breaker pattern for resilience
//   - Retry logic with exponential, constant or fibonacci backoff
//   - Prometheus metrics integration
//   - Content sanitization utilities
//
// Basic usage:
//
//	cfg := scorer.NewProductionConfig(os.Getenv("OPENAI_API_KEY"))
//	s, err := scorer.NewIntegratedScorer(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	results, err := s.ScoreTexts(ctx, []string{"Stocks rallied and the British pound gained."})
package scorer

package scorer_test

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/sashabaranov/go-openai"

	"github.com/JohnPlummer/batch-scorer/scorer"
)

var _ = Describe("Scorer", func() {
	Describe("NewScorer", func() {
		var cfg scorer.Config

		BeforeEach(func() {
			cfg = scorer.NewDefaultConfig("test-api-key")
		})

		It("should return error when API key is missing", func() {
			cfg.APIKey = ""
			_, err := scorer.NewScorer(cfg)
			Expect(err).To(Equal(scorer.ErrMissingAPIKey))
		})

		It("should reject an invalid config", func() {
			cfg.MaxLength = -1
			_, err := scorer.NewScorer(cfg)
			Expect(errors.Is(err, scorer.ErrInvalidConfig)).To(BeTrue())
			Expect(err.Error()).To(ContainSubstring("MaxLength must be non-negative"))
		})

		It("should accept any model behind a custom base URL", func() {
			cfg.BaseURL = "http://localhost:11434/v1"
			cfg.Model = "finbert-local"
			s, err := scorer.NewScorer(cfg)
			Expect(err).ToNot(HaveOccurred())
			Expect(s).ToNot(BeNil())
		})

		It("should create scorer with valid config", func() {
			s, err := scorer.NewScorer(cfg)
			Expect(err).ToNot(HaveOccurred())
			Expect(s.GetHealth(context.Background()).Healthy).To(BeTrue())
		})
	})

	Describe("ScoreTexts", func() {
		var (
			client *fakeChatClient
			s      scorer.Scorer
			ctx    context.Context
		)

		BeforeEach(func() {
			ctx = context.Background()
			client = &fakeChatClient{}
			s = scorer.NewWithClient(client)
		})

		It("should return an empty slice without calling the API", func() {
			results, err := s.ScoreTexts(ctx, nil)
			Expect(err).ToNot(HaveOccurred())
			Expect(results).ToNot(BeNil())
			Expect(results).To(BeEmpty())
			Expect(client.calls).To(Equal(0))
		})

		It("should make one API call for the whole batch", func() {
			client.content = `{"results":[
				{"index":0,"label":"positive","score":0.9},
				{"index":1,"label":"negative","score":0.8}]}`

			results, err := s.ScoreTexts(ctx, []string{"Stocks rallied.", "Markets crashed."})
			Expect(err).ToNot(HaveOccurred())
			Expect(client.calls).To(Equal(1))
			Expect(results).To(Equal([]scorer.Result{
				{Label: "positive", Score: 0.9},
				{Label: "negative", Score: 0.8},
			}))
			Expect(client.sentTexts()).To(Equal([]string{"Stocks rallied.", "Markets crashed."}))
		})

		It("should order results by index, not by response order", func() {
			client.content = `{"results":[
				{"index":2,"label":"neutral","score":0.5},
				{"index":0,"label":"positive","score":0.9},
				{"index":1,"label":"negative","score":0.7}]}`

			results, err := s.ScoreTexts(ctx, []string{"a", "b", "c"})
			Expect(err).ToNot(HaveOccurred())
			Expect(results[0].Label).To(Equal("positive"))
			Expect(results[1].Label).To(Equal("negative"))
			Expect(results[2].Label).To(Equal("neutral"))
		})

		It("should use the system prompt and JSON schema response format", func() {
			client.content = `{"results":[{"index":0,"label":"neutral","score":0.6}]}`
			_, err := s.ScoreTexts(ctx, []string{"Shares were flat."}, scorer.WithModel(openai.GPT4o))
			Expect(err).ToNot(HaveOccurred())

			Expect(client.lastRequest.Model).To(Equal(openai.GPT4o))
			Expect(client.lastRequest.Messages[0].Role).To(Equal(openai.ChatMessageRoleSystem))
			Expect(client.lastRequest.Messages[0].Content).To(ContainSubstring("sentiment"))
			Expect(client.lastRequest.ResponseFormat.Type).To(Equal(openai.ChatCompletionResponseFormatTypeJSONSchema))
		})

		Context("with a malformed response", func() {
			It("should fail when a result is missing", func() {
				client.content = `{"results":[{"index":0,"label":"positive","score":0.9}]}`
				_, err := s.ScoreTexts(ctx, []string{"a", "b"})
				Expect(errors.Is(err, scorer.ErrResultMismatch)).To(BeTrue())
			})

			It("should fail on duplicate indexes", func() {
				client.content = `{"results":[
					{"index":0,"label":"positive","score":0.9},
					{"index":0,"label":"negative","score":0.9}]}`
				_, err := s.ScoreTexts(ctx, []string{"a", "b"})
				Expect(errors.Is(err, scorer.ErrResultMismatch)).To(BeTrue())
			})

			It("should fail on an unknown label", func() {
				client.content = `{"results":[{"index":0,"label":"bullish","score":0.9}]}`
				_, err := s.ScoreTexts(ctx, []string{"a"})
				Expect(err).To(HaveOccurred())
				Expect(err.Error()).To(ContainSubstring("invalid label"))
			})

			It("should fail on an out-of-range score", func() {
				client.content = `{"results":[{"index":0,"label":"positive","score":1.5}]}`
				_, err := s.ScoreTexts(ctx, []string{"a"})
				Expect(err).To(HaveOccurred())
				Expect(err.Error()).To(ContainSubstring("invalid score"))
			})

			It("should fail on invalid JSON", func() {
				client.content = `not json`
				_, err := s.ScoreTexts(ctx, []string{"a"})
				Expect(err).To(HaveOccurred())
				Expect(err.Error()).To(ContainSubstring("failed to unmarshal"))
			})

			It("should fail when there are no choices", func() {
				client.noChoices = true
				_, err := s.ScoreTexts(ctx, []string{"a"})
				Expect(err).To(HaveOccurred())
				Expect(err.Error()).To(ContainSubstring("no choices"))
			})
		})

		It("should wrap API errors", func() {
			apiErr := &openai.APIError{HTTPStatusCode: 500, Message: "boom"}
			client.err = apiErr
			_, err := s.ScoreTexts(ctx, []string{"a"})

			var got *openai.APIError
			Expect(errors.As(err, &got)).To(BeTrue())
			Expect(got.HTTPStatusCode).To(Equal(500))
		})

		Context("length policy", func() {
			It("should truncate over-long texts by default", func() {
				client.content = `{"results":[{"index":0,"label":"neutral","score":0.5}]}`
				_, err := s.ScoreTexts(ctx, []string{strings.Repeat("x", 20)}, scorer.WithMaxLength(5))
				Expect(err).ToNot(HaveOccurred())
				Expect(client.sentTexts()).To(Equal([]string{"xxxxx"}))
			})

			It("should reject over-long texts when truncation is off", func() {
				_, err := s.ScoreTexts(ctx, []string{strings.Repeat("x", 20)},
					scorer.WithMaxLength(5), scorer.WithTruncation(false))
				Expect(errors.Is(err, scorer.ErrContentTooLong)).To(BeTrue())
				Expect(client.calls).To(Equal(0))
			})

			It("should apply the configured limit", func() {
				cfg := scorer.NewDefaultConfig("k").WithMaxLength(3, true)
				s = scorer.NewWithClient(client, scorer.WithConfig(cfg))
				client.content = `{"results":[{"index":0,"label":"neutral","score":0.5}]}`

				_, err := s.ScoreTexts(ctx, []string{"abcdef"})
				Expect(err).ToNot(HaveOccurred())
				Expect(client.sentTexts()).To(Equal([]string{"abc"}))
			})
		})
	})
})

// fakeChatClient answers every chat completion with the same content
type fakeChatClient struct {
	content     string
	err         error
	noChoices   bool
	calls       int
	lastRequest openai.ChatCompletionRequest
}

func (f *fakeChatClient) CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	f.calls++
	f.lastRequest = req
	if f.err != nil {
		return openai.ChatCompletionResponse{}, f.err
	}
	if f.noChoices {
		return openai.ChatCompletionResponse{}, nil
	}
	return openai.ChatCompletionResponse{
		Choices: []openai.ChatCompletionChoice{
			{Message: openai.ChatCompletionMessage{Content: f.content}},
		},
	}, nil
}

// sentTexts decodes the texts from the last user message
func (f *fakeChatClient) sentTexts() []string {
	var input struct {
		Texts []struct {
			Index int    `json:"index"`
			Text  string `json:"text"`
		} `json:"texts"`
	}
	Expect(json.Unmarshal([]byte(f.lastRequest.Messages[1].Content), &input)).To(Succeed())

	texts := make([]string, len(input.Texts))
	for i, t := range input.Texts {
		Expect(t.Index).To(Equal(i))
		texts[i] = t.Text
	}
	return texts
}

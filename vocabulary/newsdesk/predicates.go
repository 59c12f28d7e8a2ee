// Package newsdesk provides graph vocabulary predicates for newsdesk entities.
//
// Predicates use three-level dotted notation (domain.category.property) and are
// registered with the semstreams vocabulary registry in init().
package newsdesk

import "github.com/c360studio/semstreams/vocabulary"

// Namespace is the base IRI prefix for newsdesk ontology terms.
const Namespace = "https://newsdesk.c360studio.dev/ontology/"

// Model call predicates describe one gateway call, including failover.
const (
	// CallRequestID is the gateway request identifier.
	CallRequestID = "newsdesk.call.request_id"

	// CallSlot is the provider slot that produced the response.
	// Values: primary, secondary
	CallSlot = "newsdesk.call.slot"

	// CallProvider is the backend name (provider/model).
	CallProvider = "newsdesk.call.provider"

	// CallModel is the model reported by the provider.
	CallModel = "newsdesk.call.model"

	// CallModelHint is the requested model override.
	CallModelHint = "newsdesk.call.model_hint"

	// CallStatus is the final completion status.
	// Values: complete, incomplete, failed
	CallStatus = "newsdesk.call.status"

	// CallPollAttempts is the number of status fetches made.
	CallPollAttempts = "newsdesk.call.poll_attempts"

	// CallTokensIn is the input token count.
	CallTokensIn = "newsdesk.call.tokens_in"

	// CallTokensOut is the output token count.
	CallTokensOut = "newsdesk.call.tokens_out"

	// CallFinishReason is why generation stopped.
	CallFinishReason = "newsdesk.call.finish_reason"

	// CallDuration is the call duration in milliseconds.
	CallDuration = "newsdesk.call.duration"

	// CallSuccess indicates whether any slot produced content.
	CallSuccess = "newsdesk.call.success"

	// CallError is the final error message.
	CallError = "newsdesk.call.error"

	// CallPrimaryError is the error captured from the primary slot.
	CallPrimaryError = "newsdesk.call.primary_error"

	// CallSecondaryError is the error captured from the secondary slot.
	CallSecondaryError = "newsdesk.call.secondary_error"

	// CallResponsePreview is the first 500 bytes of the response.
	CallResponsePreview = "newsdesk.call.response_preview"

	// CallTrace correlates calls made for the same job.
	CallTrace = "newsdesk.call.trace"

	// CallStartedAt is the RFC3339 start timestamp.
	CallStartedAt = "newsdesk.call.started_at"

	// CallEndedAt is the RFC3339 end timestamp.
	CallEndedAt = "newsdesk.call.ended_at"
)

// Article predicates describe a published news item or tutorial.
const (
	// ArticleKind is the article type.
	// Values: news_item, tutorial
	ArticleKind = "newsdesk.article.kind"

	// ArticleTitle is the article title.
	ArticleTitle = "newsdesk.article.title"

	// ArticleSlug is the natural key the article is stored under.
	ArticleSlug = "newsdesk.article.slug"

	// ArticleRecord is the record ID in the store.
	ArticleRecord = "newsdesk.article.record"

	// ArticleSource is the source name the article was written from.
	ArticleSource = "newsdesk.article.source"

	// ArticleURL is the source URL.
	ArticleURL = "newsdesk.article.url"

	// ArticleTag is a topic tag (one triple per tag).
	ArticleTag = "newsdesk.article.tag"

	// ArticleUpdated indicates the upsert replaced an existing record.
	ArticleUpdated = "newsdesk.article.updated"

	// ArticleGeneratedBy links the article to the model call that produced it.
	ArticleGeneratedBy = "newsdesk.article.generated_by"
)

func registerCallPredicates() {
	vocabulary.Register(CallRequestID,
		vocabulary.WithDescription("Gateway request identifier"),
		vocabulary.WithDataType("string"),
		vocabulary.WithIRI(Namespace+"requestId"))

	vocabulary.Register(CallSlot,
		vocabulary.WithDescription("Provider slot that produced the response"),
		vocabulary.WithDataType("string"),
		vocabulary.WithIRI(Namespace+"slot"))

	vocabulary.Register(CallProvider,
		vocabulary.WithDescription("Backend name"),
		vocabulary.WithDataType("string"))

	vocabulary.Register(CallModel,
		vocabulary.WithDescription("Model reported by the provider"),
		vocabulary.WithDataType("string"))

	vocabulary.Register(CallModelHint,
		vocabulary.WithDescription("Requested model override"),
		vocabulary.WithDataType("string"))

	vocabulary.Register(CallStatus,
		vocabulary.WithDescription("Final completion status"),
		vocabulary.WithDataType("string"),
		vocabulary.WithIRI(Namespace+"status"))

	vocabulary.Register(CallPollAttempts,
		vocabulary.WithDescription("Number of status fetches"),
		vocabulary.WithDataType("int"))

	vocabulary.Register(CallTokensIn,
		vocabulary.WithDescription("Input token count"),
		vocabulary.WithDataType("int"))

	vocabulary.Register(CallTokensOut,
		vocabulary.WithDescription("Output token count"),
		vocabulary.WithDataType("int"))

	vocabulary.Register(CallFinishReason,
		vocabulary.WithDescription("Why generation stopped"),
		vocabulary.WithDataType("string"))

	vocabulary.Register(CallDuration,
		vocabulary.WithDescription("Call duration in milliseconds"),
		vocabulary.WithDataType("int"))

	vocabulary.Register(CallSuccess,
		vocabulary.WithDescription("Whether any slot produced content"),
		vocabulary.WithDataType("bool"))

	vocabulary.Register(CallError,
		vocabulary.WithDescription("Final error message"),
		vocabulary.WithDataType("string"))

	vocabulary.Register(CallPrimaryError,
		vocabulary.WithDescription("Error captured from the primary slot"),
		vocabulary.WithDataType("string"))

	vocabulary.Register(CallSecondaryError,
		vocabulary.WithDescription("Error captured from the secondary slot"),
		vocabulary.WithDataType("string"))

	vocabulary.Register(CallResponsePreview,
		vocabulary.WithDescription("Truncated response text"),
		vocabulary.WithDataType("string"))

	vocabulary.Register(CallTrace,
		vocabulary.WithDescription("Trace correlating calls of one job"),
		vocabulary.WithDataType("string"),
		vocabulary.WithIRI("http://purl.org/dc/terms/identifier"))

	vocabulary.Register(CallStartedAt,
		vocabulary.WithDescription("Start timestamp"),
		vocabulary.WithDataType("datetime"),
		vocabulary.WithIRI(vocabulary.ProvStartedAtTime))

	vocabulary.Register(CallEndedAt,
		vocabulary.WithDescription("End timestamp"),
		vocabulary.WithDataType("datetime"),
		vocabulary.WithIRI(vocabulary.ProvEndedAtTime))
}

func registerArticlePredicates() {
	vocabulary.Register(ArticleKind,
		vocabulary.WithDescription("Article type"),
		vocabulary.WithDataType("string"))

	vocabulary.Register(ArticleTitle,
		vocabulary.WithDescription("Article title"),
		vocabulary.WithDataType("string"),
		vocabulary.WithIRI("http://purl.org/dc/terms/title"))

	vocabulary.Register(ArticleSlug,
		vocabulary.WithDescription("Natural key of the stored article"),
		vocabulary.WithDataType("string"),
		vocabulary.WithIRI(Namespace+"slug"))

	vocabulary.Register(ArticleRecord,
		vocabulary.WithDescription("Record ID in the store"),
		vocabulary.WithDataType("string"))

	vocabulary.Register(ArticleSource,
		vocabulary.WithDescription("Source the article was written from"),
		vocabulary.WithDataType("string"),
		vocabulary.WithIRI("http://purl.org/dc/terms/source"))

	vocabulary.Register(ArticleURL,
		vocabulary.WithDescription("Source URL"),
		vocabulary.WithDataType("string"))

	vocabulary.Register(ArticleTag,
		vocabulary.WithDescription("Topic tag"),
		vocabulary.WithDataType("string"))

	vocabulary.Register(ArticleUpdated,
		vocabulary.WithDescription("Whether the upsert replaced an existing record"),
		vocabulary.WithDataType("bool"))

	vocabulary.Register(ArticleGeneratedBy,
		vocabulary.WithDescription("Model call that produced the article"),
		vocabulary.WithDataType("entity_id"),
		vocabulary.WithIRI(vocabulary.ProvWasGeneratedBy))
}

func init() {
	registerCallPredicates()
	registerArticlePredicates()
}

package newsdesk_test

import (
	"strings"
	"testing"

	"github.com/c360studio/semstreams/vocabulary"

	"github.com/c360studio/newsdesk/vocabulary/newsdesk"
)

func TestPredicatesRegistered(t *testing.T) {
	predicates := []string{
		newsdesk.CallRequestID,
		newsdesk.CallSlot,
		newsdesk.CallStatus,
		newsdesk.CallPollAttempts,
		newsdesk.CallPrimaryError,
		newsdesk.CallSecondaryError,
		newsdesk.CallStartedAt,
		newsdesk.ArticleKind,
		newsdesk.ArticleTitle,
		newsdesk.ArticleSlug,
		newsdesk.ArticleTag,
		newsdesk.ArticleGeneratedBy,
	}

	for _, predicate := range predicates {
		t.Run(predicate, func(t *testing.T) {
			meta := vocabulary.GetPredicateMetadata(predicate)
			if meta == nil {
				t.Errorf("predicate %q not registered", predicate)
				return
			}
			if meta.Description == "" {
				t.Errorf("predicate %q has no description", predicate)
			}
			if meta.DataType == "" {
				t.Errorf("predicate %q has no data type", predicate)
			}
		})
	}
}

func TestPredicateNotation(t *testing.T) {
	predicates := []string{
		newsdesk.CallModel,
		newsdesk.CallDuration,
		newsdesk.ArticleRecord,
		newsdesk.ArticleUpdated,
	}

	for _, p := range predicates {
		parts := strings.Split(p, ".")
		if len(parts) != 3 {
			t.Errorf("predicate %q should have three dotted parts, got %d", p, len(parts))
		}
		if parts[0] != "newsdesk" {
			t.Errorf("predicate %q should be in the newsdesk domain", p)
		}
	}
}

package chat

import (
	"sort"

	"bazarek/internal/models"
)

// MergeOutcome describes what a Merge did with the incoming message.
type MergeOutcome int

const (
	// MergeAppended means the incoming message was genuinely new.
	MergeAppended MergeOutcome = iota
	// MergeConfirmed means the incoming message collapsed into an
	// existing pending entry (an optimistic send got its confirmation).
	MergeConfirmed
	// MergeDuplicate means an entry with the same id was already
	// present and was updated in place.
	MergeDuplicate
)

// Merge reconciles one incoming server-observed message into the
// existing message list. It returns a new list; the input is not
// modified. Matching rules, first match wins:
//
//  1. Exact id match with an existing entry: update it in place.
//  2. An unmatched pending entry from the same sender with identical
//     content: treat incoming as its confirmation, adopting the
//     server id and timestamp.
//  3. Otherwise append as a new confirmed entry.
//
// The oldest pending entry matches first, so sending the same text
// twice confirms the sends in order.
func Merge(existing []models.Message, incoming models.Message) ([]models.Message, MergeOutcome) {
	incoming = normalizeIncoming(incoming)

	result := make([]models.Message, len(existing))
	copy(result, existing)

	// Rule 1: id equality.
	if incoming.ID != "" {
		for i, m := range result {
			if m.ID == incoming.ID {
				result[i] = adoptContent(incoming, m)
				return result, MergeDuplicate
			}
		}
	}

	// Rule 2: confirmation of an optimistic send. The list is ordered
	// ascending, so the first hit is the oldest pending entry.
	for i, m := range result {
		if m.Status == models.MessageStatusPending &&
			m.SenderID == incoming.SenderID &&
			m.Content == incoming.Content {
			result[i] = adoptContent(incoming, m)
			return result, MergeConfirmed
		}
	}

	// Rule 3: genuinely new.
	result = append(result, incoming)
	return result, MergeAppended
}

// MergeHistory reconciles a bulk history fetch against the current
// list. The fetched list wins, except that local pending and failed
// entries without a counterpart in it are carried over, so an
// in-flight send is never lost to a concurrent refresh.
func MergeHistory(existing, fetched []models.Message) []models.Message {
	result := make([]models.Message, len(fetched))
	for i, m := range fetched {
		result[i] = normalizeIncoming(m)
	}
	matched := make([]bool, len(result))

	for _, local := range existing {
		if local.Status != models.MessageStatusPending && local.Status != models.MessageStatusFailed {
			continue
		}
		if idx := matchIndex(result, matched, local); idx >= 0 {
			matched[idx] = true
			result[idx] = adoptContent(result[idx], local)
			continue
		}
		result = append(result, local)
		matched = append(matched, true)
	}

	sort.SliceStable(result, func(i, j int) bool {
		return result[i].Timestamp.Before(result[j].Timestamp)
	})
	return result
}

// matchIndex finds the fetched entry that represents the same logical
// message as the local one: first by id, then (for pending entries
// only) by sender and content against a not-yet-matched entry.
func matchIndex(fetched []models.Message, matched []bool, local models.Message) int {
	if local.ID != "" {
		for i, m := range fetched {
			if m.ID == local.ID {
				return i
			}
		}
	}
	if local.Status != models.MessageStatusPending {
		return -1
	}
	for i, m := range fetched {
		if !matched[i] && m.SenderID == local.SenderID && m.Content == local.Content {
			return i
		}
	}
	return -1
}

// adoptContent takes the authoritative message and fills in content
// and type from the other side when the payload omits them. The
// result is always confirmed; a confirmed message never regresses.
func adoptContent(authoritative, other models.Message) models.Message {
	if authoritative.Content == "" {
		authoritative.Content = other.Content
	}
	if authoritative.Type == "" {
		authoritative.Type = other.Type
	}
	authoritative.Read = authoritative.Read || other.Read
	authoritative.Status = models.MessageStatusConfirmed
	return authoritative
}

func normalizeIncoming(m models.Message) models.Message {
	if m.Type == "" {
		m.Type = models.MessageTypeText
	}
	m.Status = models.MessageStatusConfirmed
	return m
}

package usecase

import (
	"context"
	"strings"

	"github.com/aviary-social/aviary/internal/domain"
)

// DefaultRelationCommand is applied when a report carries no command string.
const DefaultRelationCommand = "+ +rt"

// RelationUsecase applies the subscription command language to one
// (follower, followee) relation row.
type RelationUsecase struct {
	relations RelationRepository
}

func NewRelationUsecase(relations RelationRepository) *RelationUsecase {
	return &RelationUsecase{relations: relations}
}

// ApplyCommand loads the existing-or-zero relation row, applies each token
// left to right against the staged in-memory row, and persists the result
// once at the end. An unknown token aborts before that single write, so
// nothing is ever partially persisted even though evaluation is interleaved
// with validation.
func (uc *RelationUsecase) ApplyCommand(ctx context.Context, follower, followee, command string) (domain.Relation, error) {
	rel, err := uc.relations.Get(ctx, follower, followee)
	if err != nil {
		return domain.Relation{}, err
	}

	if command == "" {
		command = DefaultRelationCommand
	}

	// A non-empty command must carry at least one token; whitespace-only
	// input is not an implicit default.
	tokens := strings.Fields(command)
	if len(tokens) == 0 {
		return domain.Relation{}, domain.InvalidRequestError{Reason: "invalid command"}
	}

	for _, token := range tokens {
		switch token {
		case "+", "+posts":
			rel.Posts = true
		case "+rt":
			rel.Reposts = true
		case "+r":
			rel.Replies = true
		case "+to":
			rel.RepliesTo = true
		case "+all":
			rel.Posts = true
			rel.Replies = true
			rel.Reposts = true

		case "-", "-all":
			rel = domain.Relation{Follower: follower, Followee: followee}
		case "-posts":
			rel.Posts = false
		case "-rt":
			rel.Reposts = false
		case "-r":
			rel.Replies = false
		case "-to":
			rel.RepliesTo = false

		default:
			return domain.Relation{}, domain.InvalidRequestError{Reason: "invalid command"}
		}
	}

	if err := uc.relations.Put(ctx, rel); err != nil {
		return domain.Relation{}, err
	}
	return rel, nil
}

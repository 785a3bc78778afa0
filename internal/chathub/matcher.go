package chathub

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"math/rand"
	"time"

	"gorandom/backend/internal/models"
	"gorandom/backend/internal/realtime"
	"gorandom/backend/internal/storage"

	"github.com/google/uuid"
)

// MatchResult is the outcome of one AttemptMatch call. Matched == false means
// no partner was found and the caller is left waiting under every interest it
// declared, to be claimed later by some other search.
type MatchResult struct {
	Matched         bool
	SessionID       string
	PartnerID       string
	SharedInterests []string
}

// MatcherService pairs a searching user with a waiting partner who shares an
// interest. Every claim is serialized through the store's compare-and-swap on
// the interest queue, so two searchers can never both dequeue the same
// waiting id from one queue; a per-user claim key closes the remaining race
// of one user being claimed from two different queues at once.
type MatcherService struct {
	Store   realtime.Store
	Storage storage.Storage
}

func NewMatcherService(store realtime.Store, s storage.Storage) *MatcherService {
	return &MatcherService{Store: store, Storage: s}
}

// AttemptMatch walks the caller's interests in random order. For each tag it
// either claims a waiting partner or enqueues the caller under that tag, so
// an unmatched caller ends up waiting under all of its interests at once.
// The caller must already be in searching status.
func (m *MatcherService) AttemptMatch(ctx context.Context, uid string, interests []string) (MatchResult, error) {
	tags := models.NormalizeInterests(interests)
	if len(tags) == 0 {
		return MatchResult{}, ErrNoInterests
	}

	shuffled := make([]string, len(tags))
	copy(shuffled, tags)
	rand.Shuffle(len(shuffled), func(i, j int) {
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	})

	var joined []string
	for _, tag := range shuffled {
		// Candidates given up on this tag (blocked, vanished, claimed away).
		// The retry pass skips them, so the per-tag loop always terminates:
		// once no eligible candidate is left the caller enqueues itself.
		exclude := make(map[string]bool)
		for {
			// If another searcher claimed us since the last iteration, stop:
			// our own status subscription will deliver that match. Enqueueing
			// further would leave stale entries behind the winner's cleanup.
			if claimed, err := m.isClaimed(ctx, uid); err != nil {
				return MatchResult{}, err
			} else if claimed {
				return MatchResult{}, nil
			}

			var partnerID string
			res, err := m.Store.CompareAndSwap(ctx, realtime.QueueKey(tag), func(cur []byte) ([]byte, error) {
				q, err := decodeQueue(cur)
				if err != nil {
					return nil, err
				}
				partnerID = ""
				for id := range q {
					if id != uid && !exclude[id] {
						partnerID = id
						break
					}
				}
				if partnerID != "" {
					// The commit of this removal is the only evidence of a
					// successful claim.
					delete(q, partnerID)
					return encodeQueue(q), nil
				}
				q[uid] = true
				return encodeQueue(q), nil
			})
			if err != nil {
				return MatchResult{}, err
			}
			if !res.Committed {
				break
			}
			if partnerID == "" {
				joined = append(joined, tag)
				break
			}

			result, verdict, err := m.finalizeMatch(ctx, uid, partnerID, tag, tags, joined)
			if err != nil {
				return MatchResult{}, err
			}
			if verdict == matchCommitted {
				return result, nil
			}
			if verdict == candidateStillFree {
				// Put the candidate back where we found them.
				if _, err := m.Store.CompareAndSwap(ctx, realtime.QueueKey(tag), addToQueue(partnerID)); err != nil {
					log.Printf("ERROR: restoring candidate %s to %s: %v", partnerID, tag, err)
				}
			}
			exclude[partnerID] = true
			// Same tag again: another waiting candidate, or our own enqueue.
		}
	}
	return MatchResult{}, nil
}

// claimVerdict is finalizeMatch's word on a dequeued candidate.
type claimVerdict int

const (
	matchCommitted     claimVerdict = iota
	candidateGone                   // claimed elsewhere or vanished; do not restore
	candidateStillFree              // unusable for us but free; restore to the queue
)

// finalizeMatch turns a dequeued candidate into a committed session. A verdict
// other than matchCommitted means the candidate must be given up; it also says
// whether they are still free and belong back in the queue.
func (m *MatcherService) finalizeMatch(ctx context.Context, uid, partnerID, claimedTag string, tags, joined []string) (MatchResult, claimVerdict, error) {
	blocked, err := m.Storage.IsBlocked(ctx, uid, partnerID)
	if err != nil {
		log.Printf("WARNING: block lookup for %s/%s failed, assuming not blocked: %v", uid, partnerID, err)
	}
	if blocked {
		return MatchResult{}, candidateStillFree, nil
	}

	sessionID := uuid.New().String()
	ok, contested, err := m.claimPair(ctx, sessionID, uid, partnerID)
	if err != nil {
		return MatchResult{}, candidateGone, err
	}
	if !ok {
		if contested == uid {
			// A concurrent searcher claimed us, not the candidate; the
			// candidate is still free and must not vanish from the queue.
			return MatchResult{}, candidateStillFree, nil
		}
		return MatchResult{}, candidateGone, nil
	}

	partner, err := m.Storage.GetProfile(ctx, partnerID)
	if errors.Is(err, storage.ErrProfileNotFound) {
		log.Printf("WARNING: claimed partner %s vanished, continuing search for %s", partnerID, uid)
		m.releaseClaims(ctx, sessionID, uid, partnerID)
		return MatchResult{}, candidateGone, nil
	}
	if err != nil {
		m.releaseClaims(ctx, sessionID, uid, partnerID)
		return MatchResult{}, candidateGone, err
	}

	partnerTags := models.NormalizeInterests(partner.Interests)
	now := time.Now()
	session := &models.Session{
		ID:           sessionID,
		Participants: []string{uid, partnerID},
		CreatedAt:    now.UnixMilli(),
	}

	// One all-or-nothing update: both users leave every queue they could be
	// waiting in, the session comes to life, and both statuses flip to
	// chatting referencing it and each other.
	removals := make(map[string][]string)
	for _, t := range joined {
		removals[t] = append(removals[t], uid)
	}
	for _, t := range partnerTags {
		removals[t] = append(removals[t], partnerID)
	}
	muts := make(map[string]realtime.Mutation, len(removals)+3)
	for t, ids := range removals {
		muts[realtime.QueueKey(t)] = removeFromQueue(ids...)
	}
	muts[realtime.SessionKey(sessionID)] = realtime.Set(session.Encode())
	muts[realtime.UserStatusKey(uid)] = realtime.Set(models.Chatting(sessionID, partnerID).Encode())
	muts[realtime.UserStatusKey(partnerID)] = realtime.Set(models.Chatting(sessionID, uid).Encode())

	if err := m.Store.AtomicUpdate(ctx, muts); err != nil {
		m.releaseClaims(ctx, sessionID, uid, partnerID)
		return MatchResult{}, candidateGone, err
	}

	if err := m.Storage.SaveSession(ctx, &models.SessionRecord{
		SessionID: sessionID,
		User1ID:   uid,
		User2ID:   partnerID,
		IsActive:  true,
		StartedAt: now,
	}); err != nil {
		log.Printf("ERROR: saving session audit row %s: %v", sessionID, err)
	}

	log.Printf("Match found: %s and %s in session %s (via %s)", uid, partnerID, sessionID, claimedTag)
	return MatchResult{
		Matched:         true,
		SessionID:       sessionID,
		PartnerID:       partnerID,
		SharedInterests: models.SharedInterests(tags, partnerTags),
	}, matchCommitted, nil
}

func (m *MatcherService) isClaimed(ctx context.Context, uid string) (bool, error) {
	raw, err := m.Store.Get(ctx, realtime.ClaimKey(uid))
	if err != nil {
		return false, err
	}
	return len(raw) != 0, nil
}

// claimPair takes both users' claim keys, lowest id first, so two claimants
// contending for overlapping pairs resolve deterministically. On failure any
// key already taken by this attempt is released, and the uid whose key was
// contested is reported so the caller knows which side was claimed away.
func (m *MatcherService) claimPair(ctx context.Context, sessionID, a, b string) (bool, string, error) {
	first, second := a, b
	if second < first {
		first, second = second, first
	}
	ok, err := m.claimOne(ctx, sessionID, first)
	if err != nil {
		return false, "", err
	}
	if !ok {
		return false, first, nil
	}
	ok, err = m.claimOne(ctx, sessionID, second)
	if err != nil {
		m.releaseClaim(ctx, sessionID, first)
		return false, "", err
	}
	if !ok {
		m.releaseClaim(ctx, sessionID, first)
		return false, second, nil
	}
	return true, "", nil
}

func (m *MatcherService) claimOne(ctx context.Context, sessionID, uid string) (bool, error) {
	res, err := m.Store.CompareAndSwap(ctx, realtime.ClaimKey(uid), func(cur []byte) ([]byte, error) {
		if len(cur) != 0 {
			return nil, realtime.ErrAbort
		}
		return json.Marshal(sessionID)
	})
	if err != nil {
		return false, err
	}
	return res.Committed, nil
}

// releaseClaim deletes uid's claim key only while it still carries sessionID.
func (m *MatcherService) releaseClaim(ctx context.Context, sessionID, uid string) {
	_, err := m.Store.CompareAndSwap(ctx, realtime.ClaimKey(uid), func(cur []byte) ([]byte, error) {
		var held string
		if json.Unmarshal(cur, &held) != nil || held != sessionID {
			return nil, realtime.ErrAbort
		}
		return nil, nil
	})
	if err != nil {
		log.Printf("ERROR: releasing claim %s for %s: %v", sessionID, uid, err)
	}
}

func (m *MatcherService) releaseClaims(ctx context.Context, sessionID string, uids ...string) {
	for _, uid := range uids {
		m.releaseClaim(ctx, sessionID, uid)
	}
}

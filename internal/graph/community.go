package graph

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/dgraph-io/badger/v4"

	"github.com/knoguchi/omnirag/internal/embedder"
	"github.com/knoguchi/omnirag/internal/llm"
)

const (
	defaultPropagationIterations = 20
	maxEntitiesPerSummary        = 20
	maxSummaryTokens             = 300
	communitySearchThreshold     = 0.2
)

// DetectCommunities recomputes communities over the undirected
// relationship graph: a label-propagation pass (seeds each node to its own
// label, then iteratively adopts the majority label among neighbors) is
// followed by a modularity-gain merge step that absorbs small adjacent
// communities into a larger neighbor when doing so increases modularity.
// Isolated entities become singleton communities (I3).
func (s *Store) DetectCommunities(ctx context.Context) ([]Community, error) {
	entities, err := s.AllEntities()
	if err != nil {
		return nil, err
	}
	relationships, err := s.AllRelationships()
	if err != nil {
		return nil, err
	}

	entityExists := make(map[string]bool, len(entities))
	for _, e := range entities {
		entityExists[e.ID] = true
	}

	adjacency := make(map[string]map[string]bool, len(entities))
	for _, e := range entities {
		adjacency[e.ID] = make(map[string]bool)
	}
	degree := make(map[string]int, len(entities))
	for _, r := range relationships {
		if !entityExists[r.SourceEntityID] || !entityExists[r.TargetEntityID] {
			continue
		}
		if r.SourceEntityID == r.TargetEntityID {
			continue
		}
		adjacency[r.SourceEntityID][r.TargetEntityID] = true
		adjacency[r.TargetEntityID][r.SourceEntityID] = true
	}
	for id, neighbors := range adjacency {
		degree[id] = len(neighbors)
	}

	labels := labelPropagation(entities, adjacency, defaultPropagationIterations)
	labels = modularityMerge(labels, adjacency, degree)

	grouped := make(map[string][]string)
	for _, e := range entities {
		label := labels[e.ID]
		grouped[label] = append(grouped[label], e.ID)
	}

	communities := make([]Community, 0, len(grouped))
	for _, members := range grouped {
		sort.Strings(members)
		communities = append(communities, Community{
			ID:             uuidForMembers(members),
			Members:        members,
			MembershipHash: membershipHash(members),
		})
	}
	sort.Slice(communities, func(i, j int) bool { return communities[i].ID < communities[j].ID })

	communities, err = s.mergeExistingSummaries(communities)
	if err != nil {
		return nil, err
	}
	if err := s.saveCommunities(communities); err != nil {
		return nil, err
	}
	return communities, nil
}

// mergeExistingSummaries carries forward a community's previous summary
// when its membership hash is unchanged, so GenerateCommunitySummaries
// only has to regenerate communities that actually changed.
func (s *Store) mergeExistingSummaries(communities []Community) ([]Community, error) {
	existing, err := s.AllCommunities()
	if err != nil {
		return nil, err
	}
	byHash := make(map[string]Community, len(existing))
	for _, c := range existing {
		byHash[c.MembershipHash] = c
	}
	for i, c := range communities {
		if prev, ok := byHash[c.MembershipHash]; ok {
			communities[i].Summary = prev.Summary
			communities[i].SummaryVector = prev.SummaryVector
		}
	}
	return communities, nil
}

// labelPropagation seeds each entity to its own label and repeatedly
// adopts the majority label among its neighbors until stable or the
// iteration budget is spent.
func labelPropagation(entities []Entity, adjacency map[string]map[string]bool, iterations int) map[string]string {
	label := make(map[string]string, len(entities))
	for _, e := range entities {
		label[e.ID] = e.ID
	}

	for iter := 0; iter < iterations; iter++ {
		changed := false
		for _, e := range entities {
			counts := make(map[string]int)
			for neighbor := range adjacency[e.ID] {
				counts[label[neighbor]]++
			}
			best, bestCount := label[e.ID], 0
			for lbl, count := range counts {
				if count > bestCount || (count == bestCount && lbl < best) {
					best, bestCount = lbl, count
				}
			}
			if bestCount > 0 && label[e.ID] != best {
				label[e.ID] = best
				changed = true
			}
		}
		if !changed {
			break
		}
	}
	return label
}

// modularityMerge extends label propagation's single pass with a greedy
// merge step: for each pair of adjacent communities, merge them if doing
// so increases graph modularity, repeating until no merge helps. This
// compensates for label propagation's tendency to leave many small,
// weakly-justified communities.
func modularityMerge(label map[string]string, adjacency map[string]map[string]bool, degree map[string]int) map[string]string {
	totalEdges := 0
	for _, neighbors := range adjacency {
		totalEdges += len(neighbors)
	}
	totalEdges /= 2
	if totalEdges == 0 {
		return label
	}
	m2 := float64(2 * totalEdges)

	for {
		communityMembers := make(map[string][]string)
		for id, lbl := range label {
			communityMembers[lbl] = append(communityMembers[lbl], id)
		}

		edgesBetween := make(map[[2]string]int)
		for id, neighbors := range adjacency {
			for neighbor := range neighbors {
				a, b := label[id], label[neighbor]
				if a == b {
					continue
				}
				key := pairKey(a, b)
				edgesBetween[key]++
			}
		}

		bestGain := 0.0
		var bestA, bestB string
		for key, crossing := range edgesBetween {
			a, b := key[0], key[1]
			degA := communityDegree(communityMembers[a], degree)
			degB := communityDegree(communityMembers[b], degree)
			gain := float64(crossing)/m2 - 2*(float64(degA)*float64(degB))/(m2*m2)
			if gain > bestGain {
				bestGain = gain
				bestA, bestB = a, b
			}
		}

		if bestGain <= 0 || bestA == "" {
			break
		}
		for _, id := range communityMembers[bestB] {
			label[id] = bestA
		}
	}
	return label
}

func communityDegree(members []string, degree map[string]int) int {
	sum := 0
	for _, id := range members {
		sum += degree[id]
	}
	return sum
}

func pairKey(a, b string) [2]string {
	if a < b {
		return [2]string{a, b}
	}
	return [2]string{b, a}
}

func uuidForMembers(members []string) string {
	h := sha256.Sum256([]byte(strings.Join(members, ",")))
	return hex.EncodeToString(h[:8])
}

func membershipHash(members []string) string {
	h := sha256.Sum256([]byte(strings.Join(members, ",")))
	return hex.EncodeToString(h[:])
}

func (s *Store) saveCommunities(communities []Community) error {
	return s.db.Update(func(txn *badger.Txn) error {
		for _, c := range communities {
			data, err := json.Marshal(c)
			if err != nil {
				return fmt.Errorf("encoding community: %w", err)
			}
			if err := txn.Set(communityKey(c.ID), data); err != nil {
				return err
			}
		}
		return nil
	})
}

// AllCommunities returns every stored community.
func (s *Store) AllCommunities() ([]Community, error) {
	var out []Community
	err := s.db.View(func(txn *badger.Txn) error {
		return scanPrefix(txn, prefixCommunity, func(val []byte) error {
			var c Community
			if err := json.Unmarshal(val, &c); err != nil {
				return nil
			}
			out = append(out, c)
			return nil
		})
	})
	return out, err
}

// GenerateCommunitySummaries regenerates the summary (and, if emb is
// non-nil, its embedding) for every community whose summary is stale
// (empty, meaning membership changed since the last pass). Each summary
// is produced from the first maxEntitiesPerSummary members in the
// community's member (ID) order, not ranked by degree, and bounded to
// roughly maxSummaryTokens.
func (s *Store) GenerateCommunitySummaries(ctx context.Context, llmClient llm.Client, emb embedder.Embedder) error {
	communities, err := s.AllCommunities()
	if err != nil {
		return err
	}
	entities, err := s.AllEntities()
	if err != nil {
		return err
	}
	byID := make(map[string]Entity, len(entities))
	for _, e := range entities {
		byID[e.ID] = e
	}

	updated := make([]Community, 0, len(communities))
	for _, c := range communities {
		if c.Summary != "" {
			updated = append(updated, c)
			continue
		}

		members := make([]Entity, 0, len(c.Members))
		for _, id := range c.Members {
			if e, ok := byID[id]; ok {
				members = append(members, e)
			}
		}
		if len(members) > maxEntitiesPerSummary {
			members = members[:maxEntitiesPerSummary]
		}

		summary, err := summarizeCommunity(ctx, llmClient, members)
		if err != nil {
			updated = append(updated, c)
			continue
		}
		c.Summary = summary

		if emb != nil {
			vec, err := emb.Embed(ctx, summary)
			if err == nil {
				c.SummaryVector = vec
			}
		}
		updated = append(updated, c)
	}

	return s.saveCommunities(updated)
}

func summarizeCommunity(ctx context.Context, llmClient llm.Client, members []Entity) (string, error) {
	if llmClient == nil {
		return "", fmt.Errorf("no llm client configured")
	}

	var sb strings.Builder
	sb.WriteString("Summarize the common theme connecting the following entities in one short paragraph, under ")
	fmt.Fprintf(&sb, "%d tokens:\n\n", maxSummaryTokens)
	for _, e := range members {
		fmt.Fprintf(&sb, "- %s (%s): %s\n", e.Name, e.Type, e.Description)
	}

	response, err := llmClient.Complete(ctx, []llm.Message{llm.User(sb.String())}, llm.GenerateOptions{Temperature: 0.3, MaxTokens: maxSummaryTokens})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(response), nil
}

// CommunityMatch pairs a community with its relevance score against a
// query, when ranking by embedding similarity.
type CommunityMatch struct {
	Community Community
	Score     float32
}

// SearchCommunities pre-filters communities to those containing at least
// one entity owned by owner, then ranks them: by cosine similarity between
// queryVec and each community's summary vector when queryVec is non-nil
// and the similarity clears communitySearchThreshold, or by keyword overlap
// on the summary text otherwise. Ownership is coarse: one owned member is
// enough, so a returned community may also contain other owners' entities.
func (s *Store) SearchCommunities(ctx context.Context, query string, queryVec []float32, owner string, k int) ([]CommunityMatch, error) {
	communities, err := s.AllCommunities()
	if err != nil {
		return nil, err
	}
	entities, err := s.AllEntities()
	if err != nil {
		return nil, err
	}
	ownerOf := make(map[string]string, len(entities))
	for _, e := range entities {
		ownerOf[e.ID] = e.OwnerID
	}

	var owned []Community
	for _, c := range communities {
		if communityOwnedBy(c, owner, ownerOf) {
			owned = append(owned, c)
		}
	}

	var matches []CommunityMatch
	if queryVec != nil {
		for _, c := range owned {
			if len(c.SummaryVector) == 0 {
				continue
			}
			sim := cosineSimilarity(queryVec, c.SummaryVector)
			if sim >= communitySearchThreshold {
				matches = append(matches, CommunityMatch{Community: c, Score: sim})
			}
		}
	}
	if matches == nil {
		matches = keywordRank(query, owned)
	}

	sort.Slice(matches, func(i, j int) bool { return matches[i].Score > matches[j].Score })
	if len(matches) > k {
		matches = matches[:k]
	}
	return matches, nil
}

func communityOwnedBy(c Community, owner string, ownerOf map[string]string) bool {
	for _, id := range c.Members {
		if ownerOf[id] == owner {
			return true
		}
	}
	return false
}

func keywordRank(query string, communities []Community) []CommunityMatch {
	terms := strings.Fields(strings.ToLower(query))
	out := make([]CommunityMatch, 0, len(communities))
	for _, c := range communities {
		lower := strings.ToLower(c.Summary)
		var hits int
		for _, t := range terms {
			if strings.Contains(lower, t) {
				hits++
			}
		}
		if hits > 0 {
			out = append(out, CommunityMatch{Community: c, Score: float32(hits) / float32(len(terms)+1)})
		}
	}
	return out
}

func cosineSimilarity(a, b []float32) float32 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(normA) * math.Sqrt(normB)))
}

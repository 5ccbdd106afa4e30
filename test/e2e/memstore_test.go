package e2e_test

import (
	"context"
	"hash/fnv"
	"math"
	"sort"
	"strings"
	"sync"
	"unicode"

	"github.com/turtacn/casemind/internal/domain/casefile"
	"github.com/turtacn/casemind/pkg/types/common"
)

// memCases is an in-memory casefile.Repository and casefile.VectorIndex.
type memCases struct {
	mu    sync.RWMutex
	byID  map[string]*casefile.CaseRecord
	order []string
}

func newMemCases() *memCases {
	return &memCases{byID: make(map[string]*casefile.CaseRecord)}
}

func (m *memCases) Put(_ context.Context, rec *casefile.CaseRecord) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.byID {
		if r.Fingerprint == rec.Fingerprint || r.ID == rec.ID {
			return false, nil
		}
	}
	cp := *rec
	m.byID[rec.ID] = &cp
	m.order = append(m.order, rec.ID)
	return true, nil
}

func (m *memCases) Index(_ context.Context, rec *casefile.CaseRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r, ok := m.byID[rec.ID]; ok {
		r.Embeddings = rec.Embeddings
	}
	return nil
}

func (m *memCases) GetByFingerprint(_ context.Context, fp casefile.Fingerprint) (*casefile.CaseRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, r := range m.byID {
		if r.Fingerprint == fp {
			cp := *r
			return &cp, nil
		}
	}
	return nil, casefile.ErrCaseNotFound
}

func (m *memCases) GetByID(_ context.Context, id string) (*casefile.CaseRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if r, ok := m.byID[id]; ok {
		cp := *r
		return &cp, nil
	}
	return nil, casefile.ErrCaseNotFound
}

func (m *memCases) GetByIDs(ctx context.Context, ids []string) ([]*casefile.CaseRecord, error) {
	out := make([]*casefile.CaseRecord, 0, len(ids))
	for _, id := range ids {
		if r, err := m.GetByID(ctx, id); err == nil {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *memCases) QueryByVector(_ context.Context, field casefile.VectorField, vector []float32, limit int, excludeID string) ([]casefile.VectorHit, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var hits []casefile.VectorHit
	for _, id := range m.order {
		if id == excludeID {
			continue
		}
		v := m.byID[id].Embeddings.Get(field)
		if len(v) == 0 {
			continue
		}
		hits = append(hits, casefile.VectorHit{CaseID: id, CosineScore: cosine(vector, v)})
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].CosineScore > hits[j].CosineScore })
	if len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

func (m *memCases) List(_ context.Context, f casefile.ListFilter, page common.Pagination) ([]*casefile.CaseRecord, int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var match []*casefile.CaseRecord
	for _, id := range m.order {
		r := m.byID[id]
		if f.TemplateID != "" && r.TemplateID != f.TemplateID {
			continue
		}
		if f.Court != "" && r.Metadata.Court != f.Court {
			continue
		}
		if f.Query != "" && !strings.Contains(strings.ToLower(r.Metadata.Title), strings.ToLower(f.Query)) {
			continue
		}
		cp := *r
		match = append(match, &cp)
	}
	total := int64(len(match))
	start := page.Offset()
	if start > len(match) {
		start = len(match)
	}
	end := start + page.PageSize
	if page.PageSize <= 0 || end > len(match) {
		end = len(match)
	}
	return match[start:end], total, nil
}

func (m *memCases) Count(context.Context) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return int64(len(m.byID)), nil
}

func (m *memCases) Stats(ctx context.Context, topN int) (*casefile.Stats, error) {
	fv, _ := m.FilterValues(ctx)
	total, _ := m.Count(ctx)
	top := fv.Sections
	if topN > 0 && len(top) > topN {
		top = top[:topN]
	}
	return &casefile.Stats{
		TotalCases:      total,
		UniqueTemplates: int64(len(fv.Templates)),
		TopSections:     top,
		Courts:          fv.Courts,
	}, nil
}

func (m *memCases) FilterValues(context.Context) (*casefile.FilterValues, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	sections, courts, templates := map[string]int64{}, map[string]int64{}, map[string]int64{}
	for _, r := range m.byID {
		for _, s := range r.Metadata.SectionsInvoked {
			sections[s]++
		}
		if r.Metadata.Court != "" {
			courts[r.Metadata.Court]++
		}
		templates[r.TemplateID]++
	}
	return &casefile.FilterValues{
		Sections:  counted(sections),
		Courts:    counted(courts),
		Templates: counted(templates),
	}, nil
}

func (m *memCases) Ping(context.Context) error { return nil }

func counted(in map[string]int64) []casefile.ValueCount {
	out := make([]casefile.ValueCount, 0, len(in))
	for v, n := range in {
		out = append(out, casefile.ValueCount{Value: v, Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Value < out[j].Value
	})
	return out
}

// ---------------------------------------------------------------------------
// Models
// ---------------------------------------------------------------------------

const embedDim = 64

// hashEmbedder embeds text as a normalised bag of hashed words, so texts
// sharing vocabulary land close together.
type hashEmbedder struct{}

func (hashEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	v := make([]float32, embedDim)
	for _, w := range words(text) {
		h := fnv.New32a()
		_, _ = h.Write([]byte(w))
		v[h.Sum32()%embedDim]++
	}
	var norm float64
	for _, x := range v {
		norm += float64(x * x)
	}
	if norm > 0 {
		n := float32(math.Sqrt(norm))
		for i := range v {
			v[i] /= n
		}
	}
	return v, nil
}

func (e hashEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i], _ = e.Embed(ctx, t)
	}
	return out, nil
}

func (hashEmbedder) Dimension() int { return embedDim }

// overlapReranker scores the Jaccard overlap of the two word sets.
type overlapReranker struct{}

func (r overlapReranker) Score(_ context.Context, query, candidate string) (float64, error) {
	a, b := set(words(query)), set(words(candidate))
	if len(a) == 0 || len(b) == 0 {
		return 0, nil
	}
	inter := 0
	for w := range a {
		if b[w] {
			inter++
		}
	}
	return float64(inter) / float64(len(a)+len(b)-inter), nil
}

func (r overlapReranker) ScoreBatch(ctx context.Context, query string, candidates []string) ([]float64, error) {
	out := make([]float64, len(candidates))
	for i, c := range candidates {
		out[i], _ = r.Score(ctx, query, c)
	}
	return out, nil
}

func words(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

func set(ws []string) map[string]bool {
	out := make(map[string]bool, len(ws))
	for _, w := range ws {
		out[w] = true
	}
	return out
}

func cosine(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

//Personal.AI order the ending

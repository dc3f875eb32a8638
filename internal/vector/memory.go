package vector

import (
	"bufio"
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/flatplanetpl/poc-digital-twin/internal/models"
	"github.com/flatplanetpl/poc-digital-twin/pkg/utils"
)

// MemoryStore is an in-memory vector store using brute-force cosine search.
// Suitable for a single user's data and for tests.
type MemoryStore struct {
	dimensions int
	ids        []string
	points     map[string]*memoryPoint
	logger     *zap.Logger
	mu         sync.RWMutex
}

type memoryPoint struct {
	vector   []float32
	content  string
	filePath string
	payload  map[string]interface{}
}

// MemoryOption configures a MemoryStore.
type MemoryOption func(*MemoryStore)

// WithMemoryLogger sets the logger.
func WithMemoryLogger(l *zap.Logger) MemoryOption {
	return func(m *MemoryStore) {
		if l != nil {
			m.logger = l
		}
	}
}

// NewMemoryStore creates an in-memory store for vectors of the given dimension.
func NewMemoryStore(dimensions int, opts ...MemoryOption) (*MemoryStore, error) {
	if dimensions <= 0 {
		return nil, fmt.Errorf("dimensions must be positive")
	}
	m := &MemoryStore{
		dimensions: dimensions,
		ids:        make([]string, 0),
		points:     make(map[string]*memoryPoint),
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// Type returns the backend identifier.
func (m *MemoryStore) Type() string {
	return string(BackendMemory)
}

// Upsert inserts or replaces points. Vectors are copied and normalized.
func (m *MemoryStore) Upsert(ctx context.Context, points []Point) error {
	for _, p := range points {
		if len(p.Vector) != m.dimensions {
			return fmt.Errorf("vector dimension mismatch: got %d, expected %d", len(p.Vector), m.dimensions)
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range points {
		vec := make([]float32, m.dimensions)
		copy(vec, p.Vector)
		utils.NormalizeL2(vec)
		if _, exists := m.points[p.ID]; !exists {
			m.ids = append(m.ids, p.ID)
		}
		m.points[p.ID] = &memoryPoint{
			vector:   vec,
			content:  p.Content,
			filePath: p.FilePath,
			payload:  models.CloneMetadata(p.Payload),
		}
	}
	return nil
}

// Search returns the top-k points matching conds by cosine similarity.
// Ties keep insertion order.
func (m *MemoryStore) Search(ctx context.Context, query []float32, k int, conds []Condition) ([]*Result, error) {
	if len(query) != m.dimensions {
		return nil, fmt.Errorf("query dimension mismatch: got %d, expected %d", len(query), m.dimensions)
	}
	q := make([]float32, len(query))
	copy(q, query)
	utils.NormalizeL2(q)

	m.mu.RLock()
	defer m.mu.RUnlock()
	if k <= 0 || len(m.ids) == 0 {
		return nil, nil
	}
	type scored struct {
		id    string
		score float64
	}
	scores := make([]scored, 0, len(m.ids))
	for _, id := range m.ids {
		p := m.points[id]
		if !Matches(p.payload, p.filePath, conds) {
			continue
		}
		scores = append(scores, scored{id: id, score: CosineSimilarity(q, p.vector)})
	}
	sort.SliceStable(scores, func(i, j int) bool { return scores[i].score > scores[j].score })
	if k > len(scores) {
		k = len(scores)
	}
	result := make([]*Result, k)
	for i := 0; i < k; i++ {
		p := m.points[scores[i].id]
		result[i] = &Result{
			ID:      scores[i].id,
			Score:   scores[i].score,
			Content: p.content,
			Payload: models.CloneMetadata(p.payload),
		}
	}
	return result, nil
}

// Delete removes every point matching conds and returns their ids.
func (m *MemoryStore) Delete(ctx context.Context, conds []Condition) ([]string, error) {
	if len(conds) == 0 {
		return nil, ErrEmptyFilter
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var removed []string
	for _, id := range m.ids {
		p := m.points[id]
		if Matches(p.payload, p.filePath, conds) {
			removed = append(removed, id)
		}
	}
	m.removeLocked(removed)
	return removed, nil
}

// DeleteIDs removes points by id and returns how many existed.
func (m *MemoryStore) DeleteIDs(ctx context.Context, ids []string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.removeLocked(ids), nil
}

func (m *MemoryStore) removeLocked(ids []string) int {
	if len(ids) == 0 {
		return 0
	}
	removeSet := make(map[string]bool, len(ids))
	n := 0
	for _, id := range ids {
		if _, ok := m.points[id]; ok && !removeSet[id] {
			n++
		}
		removeSet[id] = true
		delete(m.points, id)
	}
	newIDs := make([]string, 0, len(m.ids))
	for _, id := range m.ids {
		if !removeSet[id] {
			newIDs = append(newIDs, id)
		}
	}
	m.ids = newIDs
	return n
}

type storedAttrs struct {
	Content  string                 `json:"content"`
	FilePath string                 `json:"file_path,omitempty"`
	Payload  map[string]interface{} `json:"payload,omitempty"`
}

// Save persists the store to path. Directory is created if needed. Format:
// dimension (4), n (4), then per point: idLen (4), id bytes, vector
// (dimension*4 bytes), attrLen (4), attributes as JSON.
func (m *MemoryStore) Save(path string) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if path == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create index dir: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create index file: %w", err)
	}
	defer f.Close()
	w := bufio.NewWriter(f)
	if err := binary.Write(w, binary.LittleEndian, uint32(m.dimensions)); err != nil {
		return fmt.Errorf("write dimensions: %w", err)
	}
	if err := binary.Write(w, binary.LittleEndian, uint32(len(m.ids))); err != nil {
		return fmt.Errorf("write count: %w", err)
	}
	for _, id := range m.ids {
		p := m.points[id]
		if err := writeBlock(w, []byte(id)); err != nil {
			return fmt.Errorf("write id: %w", err)
		}
		if _, err := w.Write(float32SliceToBytes(p.vector)); err != nil {
			return fmt.Errorf("write vector: %w", err)
		}
		attrs, err := json.Marshal(storedAttrs{Content: p.content, FilePath: p.filePath, Payload: p.payload})
		if err != nil {
			return fmt.Errorf("marshal payload: %w", err)
		}
		if err := writeBlock(w, attrs); err != nil {
			return fmt.Errorf("write payload: %w", err)
		}
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("flush index file: %w", err)
	}
	m.logger.Debug("saved vector store", zap.String("path", path), zap.Int("points", len(m.ids)))
	return nil
}

// Load reads the store from path and replaces the in-memory contents. Dimensions must match.
// If the file does not exist, no error is returned and the store is unchanged.
func (m *MemoryStore) Load(path string) error {
	if path == "" {
		return nil
	}
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("open index file: %w", err)
	}
	defer f.Close()
	r := bufio.NewReader(f)
	var dim, n uint32
	if err := binary.Read(r, binary.LittleEndian, &dim); err != nil {
		return fmt.Errorf("read dimensions: %w", err)
	}
	if int(dim) != m.dimensions {
		return fmt.Errorf("dimension mismatch: file has %d, index expects %d", dim, m.dimensions)
	}
	if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
		return fmt.Errorf("read count: %w", err)
	}
	ids := make([]string, 0, n)
	points := make(map[string]*memoryPoint, n)
	buf := make([]byte, m.dimensions*4)
	for i := uint32(0); i < n; i++ {
		idBytes, err := readBlock(r)
		if err != nil {
			return fmt.Errorf("read id: %w", err)
		}
		if _, err := io.ReadFull(r, buf); err != nil {
			return fmt.Errorf("read vector: %w", err)
		}
		attrBytes, err := readBlock(r)
		if err != nil {
			return fmt.Errorf("read payload: %w", err)
		}
		var attrs storedAttrs
		if err := json.Unmarshal(attrBytes, &attrs); err != nil {
			return fmt.Errorf("unmarshal payload: %w", err)
		}
		id := string(idBytes)
		if _, dup := points[id]; !dup {
			ids = append(ids, id)
		}
		points[id] = &memoryPoint{
			vector:   bytesToFloat32Slice(buf),
			content:  attrs.Content,
			filePath: attrs.FilePath,
			payload:  attrs.Payload,
		}
	}
	m.mu.Lock()
	m.ids = ids
	m.points = points
	m.mu.Unlock()
	return nil
}

func writeBlock(w io.Writer, b []byte) error {
	if err := binary.Write(w, binary.LittleEndian, uint32(len(b))); err != nil {
		return err
	}
	_, err := w.Write(b)
	return err
}

func readBlock(r io.Reader) ([]byte, error) {
	var n uint32
	if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
		return nil, err
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(r, b); err != nil {
		return nil, err
	}
	return b, nil
}

func float32SliceToBytes(s []float32) []byte {
	const size = 4
	out := make([]byte, len(s)*size)
	for i, v := range s {
		binary.LittleEndian.PutUint32(out[i*size:(i+1)*size], math.Float32bits(v))
	}
	return out
}

func bytesToFloat32Slice(b []byte) []float32 {
	const size = 4
	out := make([]float32, len(b)/size)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*size : (i+1)*size]))
	}
	return out
}

// Size returns the number of points in the store.
func (m *MemoryStore) Size() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.ids)
}

// Close is a no-op for MemoryStore.
func (m *MemoryStore) Close() error {
	return nil
}

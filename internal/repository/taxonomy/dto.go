package taxonomy

import (
	"encoding/binary"
	"fmt"
	"math"
	"strings"

	"github.com/clearfreight/hscodex/internal/domain"
)

// Hash field names for taxonomy entry documents. search_text concatenates
// description, keywords and synonyms so keyword retrieval hits all three.
const (
	fieldCode        = "code"
	fieldDescription = "description"
	fieldKeywords    = "keywords"
	fieldSynonyms    = "synonyms"
	fieldSearchText  = "search_text"
	fieldVector      = "vector"
)

const listSeparator = ","

var entryKeyPrefix = domain.KeyPrefix + "entry:"

func entryKey(code string) string {
	return entryKeyPrefix + code
}

// entryToFields converts a taxonomy entry into hash fields for storage.
func entryToFields(e domain.TaxonomyEntry) map[string]string {
	fields := map[string]string{
		fieldCode:        e.Code,
		fieldDescription: e.Description,
		fieldKeywords:    strings.Join(e.Keywords, listSeparator),
		fieldSynonyms:    strings.Join(e.Synonyms, listSeparator),
		fieldSearchText:  buildSearchText(e),
	}
	if e.HasEmbedding() {
		fields[fieldVector] = vectorToBytes(e.Embedding)
	}
	return fields
}

// entryFromFields reconstructs a taxonomy entry from stored hash fields.
func entryFromFields(fields map[string]string) (domain.TaxonomyEntry, error) {
	code := fields[fieldCode]
	if code == "" {
		return domain.TaxonomyEntry{}, fmt.Errorf("entry has no code field")
	}

	e := domain.TaxonomyEntry{
		Code:        code,
		Description: fields[fieldDescription],
		Keywords:    splitList(fields[fieldKeywords]),
		Synonyms:    splitList(fields[fieldSynonyms]),
	}

	if raw, ok := fields[fieldVector]; ok && raw != "" {
		vec, err := bytesToVector([]byte(raw))
		if err != nil {
			return domain.TaxonomyEntry{}, fmt.Errorf("entry %s: %w", code, err)
		}
		e.Embedding = vec
	}

	return e, nil
}

func buildSearchText(e domain.TaxonomyEntry) string {
	parts := make([]string, 0, 1+len(e.Keywords)+len(e.Synonyms))
	parts = append(parts, strings.ToLower(e.Description))
	for _, k := range e.Keywords {
		parts = append(parts, strings.ToLower(k))
	}
	for _, s := range e.Synonyms {
		parts = append(parts, strings.ToLower(s))
	}
	return strings.Join(parts, " ")
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, listSeparator)
}

func vectorToBytes(v []float32) string {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return string(buf)
}

func bytesToVector(data []byte) ([]float32, error) {
	if len(data)%4 != 0 {
		return nil, fmt.Errorf("vector blob length %d is not a multiple of 4", len(data))
	}
	vec := make([]float32, len(data)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return vec, nil
}

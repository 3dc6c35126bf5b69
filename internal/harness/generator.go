package harness

import (
	"fmt"
	"math/rand"
)

// Question tags the generator covers. These mirror the default required
// set plus the forced-choice function tags.
var (
	functionTags = []string{"Ne", "Ni", "Se", "Si", "Te", "Ti", "Fe", "Fi"}
	likertTags   = []string{
		"dim:energy", "dim:information", "dim:decision", "dim:structure",
		"trait:neuro",
	}
)

// responseItem matches the wire shape of POST /sessions/{id}/responses.
type responseItem struct {
	QuestionID string  `json:"question_id"`
	Kind       string  `json:"kind"`
	Tag        string  `json:"tag"`
	BlockID    string  `json:"block_id,omitempty"`
	Value      float64 `json:"value"`
}

// generateResponses builds a full answer set for one session: fcBlocks
// forced-choice blocks (each awarding points to two functions) and three
// likert answers per required tag.
func generateResponses(rng *rand.Rand, fcBlocks int) []responseItem {
	items := make([]responseItem, 0, fcBlocks*2+len(likertTags)*3)

	for b := 0; b < fcBlocks; b++ {
		first := rng.Intn(len(functionTags))
		second := (first + 1 + rng.Intn(len(functionTags)-1)) % len(functionTags)
		blockID := fmt.Sprintf("blk-%03d", b)

		items = append(items,
			responseItem{
				QuestionID: fmt.Sprintf("fc-%03d-a", b),
				Kind:       "fc",
				Tag:        functionTags[first],
				BlockID:    blockID,
				Value:      2,
			},
			responseItem{
				QuestionID: fmt.Sprintf("fc-%03d-b", b),
				Kind:       "fc",
				Tag:        functionTags[second],
				BlockID:    blockID,
				Value:      1,
			},
		)
	}

	for _, tag := range likertTags {
		for q := 0; q < 3; q++ {
			items = append(items, responseItem{
				QuestionID: fmt.Sprintf("lk-%s-%d", tag, q),
				Kind:       "likert",
				Tag:        tag,
				Value:      float64(1 + rng.Intn(5)),
			})
		}
	}
	return items
}

package harness

import (
	"math/rand"
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

func TestGenerateResponses(t *testing.T) {
	Convey("Given a generated answer set", t, func() {
		rng := rand.New(rand.NewSource(1))
		items := generateResponses(rng, 10)

		Convey("Then every block carries two distinct functions", func() {
			byBlock := map[string][]string{}
			for _, it := range items {
				if it.Kind == "fc" {
					byBlock[it.BlockID] = append(byBlock[it.BlockID], it.Tag)
				}
			}
			So(len(byBlock), ShouldEqual, 10)
			for _, tags := range byBlock {
				So(len(tags), ShouldEqual, 2)
				So(tags[0], ShouldNotEqual, tags[1])
			}
		})

		Convey("Then every required likert tag is answered", func() {
			counts := map[string]int{}
			for _, it := range items {
				if it.Kind == "likert" {
					counts[it.Tag]++
					So(it.Value, ShouldBeBetweenOrEqual, 1, 5)
				}
			}
			for _, tag := range likertTags {
				So(counts[tag], ShouldEqual, 3)
			}
		})

		Convey("Then question ids are unique", func() {
			seen := map[string]bool{}
			for _, it := range items {
				So(seen[it.QuestionID], ShouldBeFalse)
				seen[it.QuestionID] = true
			}
		})
	})
}

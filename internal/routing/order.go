package routing

import (
	"cmp"
	"regexp"
	"slices"
	"strconv"
	"strings"

	"github.com/stemsi/survey-backend/internal/model"
)

var questionNumber = regexp.MustCompile(`Q(\d+)`)

// OrderedQuestionIDs returns the canonical question order of a section:
// ids listed in q_order first by position, then the rest by their Q<n>
// number, then alphabetically.
func OrderedQuestionIDs(sec *model.Section) []string {
	ids := make([]string, 0, len(sec.Questions))
	for id := range sec.Questions {
		ids = append(ids, id)
	}

	pos := make(map[string]int, len(sec.QOrder))
	for i, id := range sec.QOrder {
		if _, dup := pos[id]; !dup {
			pos[id] = i
		}
	}

	slices.SortFunc(ids, func(a, b string) int {
		pa, aok := pos[a]
		pb, bok := pos[b]
		switch {
		case aok && bok:
			return cmp.Compare(pa, pb)
		case aok:
			return -1
		case bok:
			return 1
		}
		return naturalCompare(a, b)
	})
	return ids
}

func naturalCompare(a, b string) int {
	ma := questionNumber.FindStringSubmatch(a)
	mb := questionNumber.FindStringSubmatch(b)
	if ma != nil && mb != nil {
		na, _ := strconv.Atoi(ma[1])
		nb, _ := strconv.Atoi(mb[1])
		if na != nb {
			return cmp.Compare(na, nb)
		}
	}
	return strings.Compare(a, b)
}

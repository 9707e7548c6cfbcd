package scorer

import (
	"regexp"

	"github.com/sells-group/cmw-cli/internal/textutil"
)

// workTypeRules map text stems to informational work-type labels attached
// to cell suggestions. Order matters: the first matching rule wins.
var workTypeRules = []struct {
	re    *regexp.Regexp
	label string
}{
	{regexp.MustCompile(`труб|дрен|канал|сантех`), "Трубы/Дренаж"},
	{regexp.MustCompile(`воздуховод|вент|решет|диффуз`), "Вентиляция"},
	{regexp.MustCompile(`светил|ламп|светод`), "Светильники"},
	{regexp.MustCompile(`щит|шкаф|распредел`), "Щиты/Шкафы"},
	{regexp.MustCompile(`бетон|армир|перекрыт|лестниц|балк|металлоконструк`), "Конструкции"},
	{regexp.MustCompile(`двер|окн|витраж|перегород|стен|кровл|пол`), "Архитектура"},
}

// WorkType classifies free text into a work-type label, or "" when no rule
// matches. The classification is informational metadata on cell
// suggestions, not part of ranking.
func WorkType(text string) string {
	t := textutil.Normalize(text)
	for _, rule := range workTypeRules {
		if rule.re.MatchString(t) {
			return rule.label
		}
	}
	return ""
}

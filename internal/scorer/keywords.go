// Package scorer implements the lexical relevance scoring that produces
// cheap top-N candidate sets before the optional LLM rerank.
package scorer

import (
	"os"
	"regexp"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// Tables holds the keyword sets driving heuristic scoring. The compiled-in
// defaults cover the disciplines and element names of the standard
// collision matrix; a YAML file can override any of the three maps.
type Tables struct {
	Disciplines map[string][]string `yaml:"disciplines"`
	Groups      map[string][]string `yaml:"groups"`
	Elements    map[string][]string `yaml:"elements"`
}

// DefaultTables returns the built-in keyword tables.
func DefaultTables() *Tables {
	return &Tables{
		Disciplines: map[string][]string{
			"АР":   {"архитектур", "отделоч", "проем", "перегород", "двер", "окн"},
			"КР":   {"конструкц", "бетон", "армир", "монолит", "кирпич", "фундамент", "перекрыт"},
			"ВК":   {"водоснабжен", "канализац", "водопровод", "сток", "коллектор", "труб", "фитинг"},
			"ОВ":   {"отопл", "вентил", "кондицион", "воздуховод", "радиатор", "тепло"},
			"ЭО":   {"электроснабж", "кабель", "щит", "провод", "розет", "освещ"},
			"СС":   {"слабоч", "система", "охран", "видео", "датчик", "пожар"},
			"АУПТ": {"пожаротуш", "спринклер", "пена", "вода", "магистраль", "насос"},
		},
		Groups: map[string][]string{
			"АР":               {"архитект", "отдел", "стен", "окн", "двер", "кровл", "потол"},
			"КР":               {"конструк", "бетон", "армир", "металл", "фундамент", "балк", "лестниц"},
			"ВК (К)":           {"канал", "дрен"},
			"ВК (В)":           {"водоснаб", "водопровод", "сантех"},
			"ОВ (Вент.)":       {"вент", "воздух"},
			"ОВ (Отоп.)":       {"отоп", "радиатор", "тепло"},
			"АУПТ":             {"пожар", "тушен", "спринклер"},
			"ЭО, ЭС, ЭМ, СС":   {"элект", "кабель", "освещ", "щит", "слабоч"},
		},
		Elements: map[string][]string{
			"Стены":                          {"стен", "перегород", "кладк", "блок", "кирпич"},
			"Витражи":                        {"витраж", "стекл", "фасад"},
			"Пол / Кровля":                   {"пол", "покрыт", "кровл", "мембран"},
			"Потолок":                        {"потол", "подвесн"},
			"Двери / Окна":                   {"двер", "окн", "портал"},
			"Ограждения":                     {"огражден", "перил", "поручн", "забор"},
			"Коллоны / Пилоны":               {"колон", "пилон"},
			"Плиты фундамента":               {"фундам", "плит", "бетон"},
			"Перекрытия / Покрытия / Рампы":  {"перекрыт", "рамп", "покрыт"},
			"Балки":                          {"балк"},
			"КМ":                             {"металлоконструк", "сталь", "конструкц"},
			"Лестницы":                       {"лестниц", "ступен", "марш"},
			"Трубы / Дренаж":                 {"труб", "дренаж", "канал"},
			"Воздухораспредел.":              {"воздухораспред", "решетк", "диффузор"},
			"Воздуховод":                     {"воздуховод"},
			"Трубы":                          {"труб"},
			"Оборудование":                   {"оборуд", "установ", "агрегат", "прибор", "устройств"},
			"Спринклеры":                     {"спринклер"},
			"Кабельканалы / Лотки":           {"кабель", "лоток", "канал", "трасс"},
			"Светильники":                    {"светил", "свет", "ламп", "светод"},
			"Щиты / Шкафы":                   {"щит", "шкаф", "распредел"},
		},
	}
}

// LoadTables reads keyword table overrides from a YAML file and merges
// them over the defaults. Maps present in the file replace the default
// entry for the same key only.
func LoadTables(path string) (*Tables, error) {
	tables := DefaultTables()
	if path == "" {
		return tables, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "scorer: read keyword tables %s", path)
	}

	var override Tables
	if err := yaml.Unmarshal(data, &override); err != nil {
		return nil, eris.Wrapf(err, "scorer: parse keyword tables %s", path)
	}

	for k, v := range override.Disciplines {
		tables.Disciplines[k] = v
	}
	for k, v := range override.Groups {
		tables.Groups[k] = v
	}
	for k, v := range override.Elements {
		tables.Elements[k] = v
	}
	return tables, nil
}

// disciplineBonuses are category-stem boosts applied on top of the plain
// keyword hits for a few disciplines where the catalog wording varies.
var disciplineBonuses = map[string]*regexp.Regexp{
	"ОВ": regexp.MustCompile(`вент|отоп|конди`),
	"ВК": regexp.MustCompile(`вод|канал`),
	"КР": regexp.MustCompile(`бетон|армир|монолит`),
	"ЭО": regexp.MustCompile(`элект|кабель|щит`),
}

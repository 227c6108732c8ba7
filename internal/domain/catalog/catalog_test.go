package catalog

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/wolfinder/badges/internal/domain/model"
	"github.com/wolfinder/badges/internal/domain/requirement"
)

func TestDefaultCatalog(t *testing.T) {
	Convey("Given the embedded catalog", t, func() {
		c, err := Default()
		So(err, ShouldBeNil)

		Convey("Then every identifier is known to the default registry", func() {
			So(c.Validate(requirement.DefaultRegistry()), ShouldBeNil)
		})

		Convey("Then badges are ordered by priority with insertion order breaking ties", func() {
			slugs := c.Slugs()
			So(slugs[0], ShouldEqual, "professionista-verificato")
			So(slugs[1], ShouldEqual, "primo-cliente")
			cinque := indexOf(slugs, "cinque-stelle")
			top := indexOf(slugs, "top-rated")
			So(cinque, ShouldBeLessThan, top)
			So(slugs[len(slugs)-1], ShouldEqual, "partner-consigliato")
		})

		Convey("Then definitions can be looked up by slug", func() {
			def, ok := c.Get("sempre-impeccabile")
			So(ok, ShouldBeTrue)
			So(def.DecayRules, ShouldNotBeNil)
			So(def.DecayRules.PeriodDays, ShouldEqual, 180)
			So(def.Requirements, ShouldResemble, []string{"no_low_reviews_6m", "min_reviews_5"})

			_, ok = c.Get("missing")
			So(ok, ShouldBeFalse)
			So(c.Len(), ShouldEqual, 11)
			So(c.Version(), ShouldEqual, "2025.1")
		})

		Convey("Then All returns a copy", func() {
			all := c.All()
			all[0].Slug = "mutated"
			So(c.All()[0].Slug, ShouldNotEqual, "mutated")
		})

		Convey("Then returned definitions share no slices with the catalog", func() {
			def, _ := c.Get("sempre-impeccabile")
			def.Requirements[0] = "mutated"
			def.DecayRules.Conditions[0] = "mutated"
			def.DecayRules.PeriodDays = 1

			for _, got := range c.All() {
				if len(got.Requirements) > 0 {
					got.Requirements[0] = "mutated"
				}
			}

			again, _ := c.Get("sempre-impeccabile")
			So(again.Requirements, ShouldResemble, []string{"no_low_reviews_6m", "min_reviews_5"})
			So(again.DecayRules.Conditions[0], ShouldNotEqual, "mutated")
			So(again.DecayRules.PeriodDays, ShouldEqual, 180)
			for _, got := range c.All() {
				So(got.Requirements, ShouldNotContain, "mutated")
			}
		})
	})
}

func TestParseValidation(t *testing.T) {
	Convey("Given catalog documents", t, func() {
		Convey("When the document is empty", func() {
			_, err := Parse(strings.NewReader(""))
			So(errors.Is(err, ErrInvalidCatalog), ShouldBeTrue)
		})

		Convey("When a field is unknown", func() {
			_, err := Parse(strings.NewReader("badges:\n  - slug: a\n    nmae: typo\n"))
			So(errors.Is(err, ErrInvalidCatalog), ShouldBeTrue)
		})

		Convey("When slugs repeat and enums are wrong", func() {
			doc := `
badges:
  - {slug: a, name: A, family: quality, calculation_method: automatic, requirements: [is_verified]}
  - {slug: a, name: A2, family: quality, calculation_method: automatic, requirements: [is_verified]}
  - {slug: b, name: B, family: bronze, calculation_method: automatic, requirements: [is_verified]}
  - {slug: c, name: C, family: growth, calculation_method: sometimes, requirements: [is_verified]}
  - {slug: d, name: D, family: growth, calculation_method: hybrid}
`
			_, err := Parse(strings.NewReader(doc))
			So(err, ShouldNotBeNil)
			msg := err.Error()
			So(msg, ShouldContainSubstring, `duplicate slug "a"`)
			So(msg, ShouldContainSubstring, `unknown family "bronze"`)
			So(msg, ShouldContainSubstring, `unknown calculation method "sometimes"`)
			So(msg, ShouldContainSubstring, "hybrid badges need at least one requirement")
		})

		Convey("When decay rules are malformed", func() {
			doc := `
badges:
  - slug: a
    name: A
    family: quality
    calculation_method: automatic
    requirements: [is_verified]
    decay_rules: {period_days: -1, conditions: [is_verified]}
`
			_, err := Parse(strings.NewReader(doc))
			So(err, ShouldNotBeNil)
			So(err.Error(), ShouldContainSubstring, "decay period cannot be negative")
		})

		Convey("When a manual badge has no requirements", func() {
			doc := "badges:\n  - {slug: m, name: M, family: verification, calculation_method: manual}\n"
			c, err := Parse(strings.NewReader(doc))
			So(err, ShouldBeNil)
			So(c.Len(), ShouldEqual, 1)
		})
	})
}

func TestValidateAgainstRegistry(t *testing.T) {
	Convey("Given a catalog with typos", t, func() {
		c, err := New("", []model.BadgeDefinition{
			{Slug: "a", Name: "A", Family: model.FamilyQuality, CalculationMethod: model.MethodAutomatic,
				Requirements: []string{"reviews_count_gte_1", "reviews_cuont_gte_5"}},
			{Slug: "b", Name: "B", Family: model.FamilyGrowth, CalculationMethod: model.MethodAutomatic,
				Requirements: []string{"is_verified"},
				DecayRules:   &model.DecayRules{PeriodDays: 10, Conditions: []string{"ghost"}}},
		})
		So(err, ShouldBeNil)

		Convey("When validating", func() {
			err := c.Validate(requirement.DefaultRegistry())

			Convey("Then all unknown identifiers are reported", func() {
				So(errors.Is(err, ErrUnknownRequirement), ShouldBeTrue)
				So(err.Error(), ShouldContainSubstring, "reviews_cuont_gte_5")
				So(err.Error(), ShouldContainSubstring, "ghost")
			})
		})
	})
}

func TestLoad(t *testing.T) {
	Convey("Given a catalog file on disk", t, func() {
		dir := t.TempDir()
		path := filepath.Join(dir, "badges.yaml")
		doc := "version: test\nbadges:\n  - {slug: solo, name: Solo, family: automatic, calculation_method: automatic, requirements: [reviews_count_gte_1]}\n"
		So(os.WriteFile(path, []byte(doc), 0o600), ShouldBeNil)

		c, err := Load(path)
		So(err, ShouldBeNil)
		So(c.Slugs(), ShouldResemble, []string{"solo"})

		_, err = Load(filepath.Join(dir, "missing.yaml"))
		So(err, ShouldNotBeNil)
	})
}

func indexOf(list []string, v string) int {
	for i, s := range list {
		if s == v {
			return i
		}
	}
	return -1
}

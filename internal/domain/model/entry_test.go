package model_test

import (
	"errors"
	"testing"

	"github.com/okian/tierank/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

func TestParseMediaKind(t *testing.T) {
	Convey("Given media kind input", t, func() {
		Convey("When the value is known", func() {
			k, err := model.ParseMediaKind(" Movie ")
			So(err, ShouldBeNil)
			So(k, ShouldEqual, model.Movie)

			k, err = model.ParseMediaKind("series")
			So(err, ShouldBeNil)
			So(k, ShouldEqual, model.Series)
		})

		Convey("When the value is unknown", func() {
			_, err := model.ParseMediaKind("podcast")
			So(errors.Is(err, model.ErrInvalidMediaKind), ShouldBeTrue)
		})
	})
}

func TestTierOrdering(t *testing.T) {
	Convey("Given the three tiers", t, func() {
		So(model.Good.Above(model.Medium), ShouldBeTrue)
		So(model.Medium.Above(model.Bad), ShouldBeTrue)
		So(model.Good.Above(model.Bad), ShouldBeTrue)
		So(model.Bad.Above(model.Good), ShouldBeFalse)
		So(model.Medium.Above(model.Medium), ShouldBeFalse)
		So(model.Tier("great").Valid(), ShouldBeFalse)

		Convey("Parsing is case insensitive", func() {
			tier, err := model.ParseTier("GOOD")
			So(err, ShouldBeNil)
			So(tier, ShouldEqual, model.Good)

			_, err = model.ParseTier("")
			So(errors.Is(err, model.ErrInvalidTier), ShouldBeTrue)
		})
	})
}

func TestCandidateValidate(t *testing.T) {
	valid := model.Candidate{ExternalID: "tt0111161", Title: "The Shawshank Redemption", MediaKind: model.Movie, Tier: model.Good}

	tests := []struct {
		name    string
		mutate  func(c *model.Candidate)
		wantErr error
	}{
		{name: "valid", mutate: func(*model.Candidate) {}},
		{name: "missing external id", mutate: func(c *model.Candidate) { c.ExternalID = " " }, wantErr: model.ErrInvalidCandidate},
		{name: "missing title", mutate: func(c *model.Candidate) { c.Title = "" }, wantErr: model.ErrInvalidCandidate},
		{name: "bad kind", mutate: func(c *model.Candidate) { c.MediaKind = "book" }, wantErr: model.ErrInvalidMediaKind},
		{name: "bad tier", mutate: func(c *model.Candidate) { c.Tier = "" }, wantErr: model.ErrInvalidTier},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid
			tt.mutate(&c)
			err := c.Validate()
			if tt.wantErr == nil {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}
}

package main

import (
	"errors"
	"fmt"

	"github.com/theimaginaryfoundation/guest-pulse/pulse"
	"github.com/theimaginaryfoundation/guest-pulse/pulse/pipeline"
)

const lineAll = "all"

func (c Config) Validate() error {
	switch c.Line {
	case pipeline.LineSurveys, pipeline.LineReviews, lineAll:
	default:
		return fmt.Errorf("-line must be surveys, reviews or all, got %q", c.Line)
	}
	if c.Week != "" && !pulse.ValidWeekKey(c.Week) {
		return fmt.Errorf("-week %q is not a YYYY-W## ISO week", c.Week)
	}
	if c.Input != "" && c.Line == lineAll {
		return errors.New("-input needs -line surveys or -line reviews")
	}
	if c.DryRun && c.NoSend {
		return errors.New("use only one of -dry-run or -no-send")
	}
	if c.PreviewWidth < 20 {
		return errors.New("preview-width must be >= 20")
	}
	return nil
}

func defaultConfig() Config {
	return Config{
		Line:         lineAll,
		PreviewWidth: 100,
	}
}

// lines lists the report lines to run, surveys first.
func (c Config) lines() []string {
	if c.Line == lineAll {
		return []string{pipeline.LineSurveys, pipeline.LineReviews}
	}
	return []string{c.Line}
}

func (c Config) runs(line string) bool {
	return c.Line == lineAll || c.Line == line
}

func (c Config) delivers() bool {
	return !c.DryRun && !c.NoSend
}

//go:build property

package renderer

import (
	"strings"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"golang.org/x/net/html"
)

func TestRenderProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.Rng.Seed(2468)
	parameters.MinSuccessfulTests = 100

	properties := gopter.NewProperties(parameters)

	loop := newSet(t,
		`<template name="item"><li><slot/></li></template>`,
		`<template name="list"><template is="foreach" data="{{ = xs }}" loop="l"><item>{{ = item }}{{ = If(l.isLast, '.', ',') }}</item></template></template>`,
	)

	properties.Property("foreach renders every element in order", prop.ForAll(
		func(items []string) bool {
			xs := make([]any, len(items))
			var want strings.Builder
			for i, s := range items {
				xs[i] = s
				sep := ","
				if i == len(items)-1 {
					sep = "."
				}
				want.WriteString("<li>" + s + sep + "</li>")
			}
			out, err := loop.render(t, "list", map[string]any{"xs": xs})
			return err == nil && out == want.String()
		},
		gen.SliceOf(gen.AlphaString()),
	))

	properties.Property("rendering is deterministic", prop.ForAll(
		func(items []string) bool {
			xs := make([]any, len(items))
			for i, s := range items {
				xs[i] = s
			}
			a, errA := loop.render(t, "list", map[string]any{"xs": xs})
			b, errB := loop.render(t, "list", map[string]any{"xs": xs})
			return errA == nil && errB == nil && a == b
		},
		gen.SliceOf(gen.AlphaString()),
	))

	properties.Property("escaped output never emits markup", prop.ForAll(
		func(s string) bool {
			set := newSet(t, `<template name="t">{{ = v }}</template>`)
			out, err := set.render(t, "t", map[string]any{"v": s})
			return err == nil && !strings.ContainsAny(out, "<>") && html.UnescapeString(out) == s
		},
		gen.AnyString(),
	))

	properties.Property("plain elements round trip", prop.ForAll(
		func(tag, text string) bool {
			tag = "x-" + tag
			src := "<" + tag + ` id="x">` + text + "</" + tag + ">"
			set := newSet(t, `<template name="t">`+src+`</template>`)
			out, err := set.render(t, "t", nil)
			return err == nil && out == src
		},
		gen.Identifier(),
		gen.AlphaString(),
	))

	properties.TestingRun(t)
}

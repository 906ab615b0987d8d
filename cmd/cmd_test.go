package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/conneroisu/tessera/internal/engine"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

// project writes templates below a fresh directory together with a config
// file pointing at them, and returns the config path.
func project(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		writeFile(t, filepath.Join(dir, "templates", name), content)
	}
	cfg := filepath.Join(dir, "tessera.yml")
	writeFile(t, cfg, "templates:\n  paths: ["+filepath.Join(dir, "templates")+"]\nlog:\n  level: error\n")
	return cfg
}

func resetFlags(c *cobra.Command) {
	reset := func(f *pflag.Flag) {
		if sv, ok := f.Value.(pflag.SliceValue); ok {
			_ = sv.Replace(nil)
		} else {
			_ = f.Value.Set(f.DefValue)
		}
		f.Changed = false
	}
	c.Flags().VisitAll(reset)
	c.PersistentFlags().VisitAll(reset)
	for _, child := range c.Commands() {
		resetFlags(child)
	}
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	resetFlags(rootCmd)
	cfgFile = ""

	var out, errOut bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&errOut)
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
		rootCmd.SetArgs(nil)
	})

	err := rootCmd.ExecuteContext(context.Background())
	return out.String(), err
}

var site = map[string]string{
	"card.html": `<template name="card"><t:meta key="group" value="ui"/>` +
		`<div class="card"><h2><slot name="title"></slot></h2><slot></slot></div></template>`,
	"page.html": `<template name="page"><card><b slot="title">{{ = title }}</b>` +
		`<p>Hi {{ = user.name || 'stranger' }}</p></card></template>`,
}

func TestRenderCommand(t *testing.T) {
	cfg := project(t, site)
	data := filepath.Join(filepath.Dir(cfg), "data.yml")
	writeFile(t, data, "title: Welcome\nuser:\n  name: Ana\n")

	out, err := execute(t, "--config", cfg, "render", "page", "--data", data)
	require.NoError(t, err)
	assert.Equal(t, `<div class="card"><h2><b>Welcome</b></h2><p>Hi Ana</p></div>`, out)

	out, err = execute(t, "--config", cfg, "render", "page", "--data", data, "--set", "user.name=<Bo>", "--set", "title=Hey")
	require.NoError(t, err)
	assert.Equal(t, `<div class="card"><h2><b>Hey</b></h2><p>Hi &lt;Bo&gt;</p></div>`, out)

	out, err = execute(t, "--config", cfg, "render", "page")
	require.NoError(t, err)
	assert.Equal(t, `<div class="card"><h2><b></b></h2><p>Hi stranger</p></div>`, out)
}

func TestRenderToFile(t *testing.T) {
	cfg := project(t, site)
	target := filepath.Join(t.TempDir(), "index.html")

	out, err := execute(t, "--config", cfg, "render", "page", "--set", "title=T", "--out", target)
	require.NoError(t, err)
	assert.Empty(t, out)

	written, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Contains(t, string(written), "<b>T</b>")
}

func TestRenderDump(t *testing.T) {
	cfg := project(t, site)

	out, err := execute(t, "--config", cfg, "render", "page", "--dump")
	require.NoError(t, err)
	assert.Contains(t, out, "template card")
	assert.Contains(t, out, "[title]")
}

func TestRenderFailures(t *testing.T) {
	cfg := project(t, site)

	_, err := execute(t, "--config", cfg, "render", "nope")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "template not found")

	_, err = execute(t, "--config", cfg, "render", "page", "--data", filepath.Join(t.TempDir(), "missing.yml"))
	require.Error(t, err)

	broken := project(t, map[string]string{
		"ok.html":  `<template name="ok">ok</template>`,
		"bad.html": `<template name="bad"><div></span></template>`,
	})
	_, err = execute(t, "--config", broken, "render", "ok")
	require.Error(t, err, "a broken file fails the load")
}

func TestListCommand(t *testing.T) {
	cfg := project(t, site)

	out, err := execute(t, "--config", cfg, "list", "-o", "json")
	require.NoError(t, err)
	var infos []engine.TemplateInfo
	require.NoError(t, json.Unmarshal([]byte(out), &infos))
	require.Len(t, infos, 2)
	assert.Equal(t, "card", infos[0].Name)
	assert.Equal(t, []string{"title"}, infos[0].Slots)
	assert.Equal(t, map[string]string{"group": "ui"}, infos[0].Metadata)
	assert.Equal(t, []string{"card"}, infos[1].Calls)

	out, err = execute(t, "--config", cfg, "list", "-o", "yaml")
	require.NoError(t, err)
	var fromYAML []engine.TemplateInfo
	require.NoError(t, yaml.Unmarshal([]byte(out), &fromYAML))
	require.Len(t, fromYAML, 2)
	assert.Equal(t, "card", fromYAML[0].Name)
	assert.Equal(t, []string{"page"}, fromYAML[0].UsedBy)
	assert.Equal(t, []string{"card"}, fromYAML[1].Calls)

	out, err = execute(t, "--config", cfg, "list")
	require.NoError(t, err)
	assert.Contains(t, out, "NAME")
	assert.Contains(t, out, "title,*")
	assert.Contains(t, out, "group=ui")
	assert.Contains(t, out, "Total: 2 templates")

	_, err = execute(t, "--config", cfg, "list", "-o", "csv")
	require.Error(t, err)
}

func TestCheckCommand(t *testing.T) {
	cfg := project(t, map[string]string{
		"a.html": `<template name="a"><template if="{{ = more }}"><i></i></template></template>`,
		"b.html": `<template name="b"><a></a></template>`,
	})
	out, err := execute(t, "--config", cfg, "check")
	require.NoError(t, err)
	assert.Contains(t, out, "2 templates OK")

	cfg = project(t, map[string]string{
		"ok.html":       `<template name="ok">ok</template>`,
		"broken.html":   "<template name=\"broken\">\n<div></span>\n</template>",
		"nameless.html": `<template>x</template>`,
	})
	out, err = execute(t, "--config", cfg, "check")
	require.Error(t, err)
	assert.Contains(t, out, "broken.html:2:")
	assert.Contains(t, out, "nameless.html")
	assert.Contains(t, out, "1 templates loaded, 2 files failed")
}

func TestCheckReportsCycles(t *testing.T) {
	cfg := project(t, map[string]string{
		"even.html": `<template name="even"><template if="{{ = n }}"><odd></odd></template></template>`,
		"odd.html":  `<template name="odd"><even></even></template>`,
	})
	out, err := execute(t, "--config", cfg, "check")
	require.NoError(t, err)
	assert.Contains(t, out, "info call cycle")
}

func TestLoadData(t *testing.T) {
	file := filepath.Join(t.TempDir(), "data.json")
	writeFile(t, file, `{"user": {"name": "Ana"}, "n": 1}`)

	f := &StandardFlags{DataFile: file, Set: []string{"user.age=30", "flag=true", "list.first=x", "n=two"}}
	data, err := f.LoadData()
	require.NoError(t, err)

	assert.Equal(t, map[string]any{"name": "Ana", "age": 30}, data["user"])
	assert.Equal(t, true, data["flag"])
	assert.Equal(t, map[string]any{"first": "x"}, data["list"])
	assert.Equal(t, "two", data["n"])

	_, err = (&StandardFlags{Set: []string{"novalue"}}).LoadData()
	require.Error(t, err)

	_, err = (&StandardFlags{Set: []string{"n=1", "n.x=2"}}).LoadData()
	require.Error(t, err)
}

func TestVersionCommand(t *testing.T) {
	out, err := execute(t, "version", "--format", "json")
	require.NoError(t, err)

	var info map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &info))
	assert.Contains(t, info, "version")
	assert.Contains(t, info, "go_version")

	_, err = execute(t, "version", "--format", "xml")
	require.Error(t, err)
}

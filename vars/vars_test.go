package vars

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestContext(t *testing.T) {
	t.Run("BuiltinsSeeded", func(t *testing.T) {
		c := New(nil)

		cwd, ok := c.Get("cwd")
		assert.True(t, ok)
		assert.NotEmpty(t, cwd)

		root, ok := c.Get("project_root")
		assert.True(t, ok)
		assert.Equal(t, cwd, root)

		py, ok := c.Get("python")
		assert.True(t, ok)
		assert.NotEmpty(t, py)
	})

	t.Run("ConfigOverridesBuiltins", func(t *testing.T) {
		c := New(map[string]string{"project_root": "/srv/app", "src": "${project_root}/src"})

		root, _ := c.Get("project_root")
		assert.Equal(t, "/srv/app", root)
	})

	t.Run("SetAndGet", func(t *testing.T) {
		c := New(nil)
		c.Set("active_module", "auth")

		v, ok := c.Get("active_module")
		assert.True(t, ok)
		assert.Equal(t, "auth", v)

		_, ok = c.Get("missing")
		assert.False(t, ok)
	})

	t.Run("MapCopies", func(t *testing.T) {
		c := New(map[string]string{"a": "1"})
		m := c.Map()
		m["a"] = "mutated"

		v, _ := c.Get("a")
		assert.Equal(t, "1", v)
	})
}

func TestResolver(t *testing.T) {
	t.Run("SimpleSubstitution", func(t *testing.T) {
		r := NewResolver(map[string]string{"name": "core"})
		assert.Equal(t, "module core ready", r.Resolve("module ${name} ready"))
	})

	t.Run("NestedSubstitution", func(t *testing.T) {
		r := NewResolver(map[string]string{
			"root": "/srv/app",
			"src":  "${root}/src",
			"pkg":  "${src}/pkg",
		})
		assert.Equal(t, "/srv/app/src/pkg", r.Resolve("${pkg}"))
	})

	t.Run("UnknownPreserved", func(t *testing.T) {
		r := NewResolver(map[string]string{"known": "v"})
		assert.Equal(t, "v and ${unknown}", r.Resolve("${known} and ${unknown}"))
	})

	t.Run("CircularTerminates", func(t *testing.T) {
		r := NewResolver(map[string]string{"a": "${b}", "b": "${a}"})
		// No assertion on the exact value, only that resolution returns.
		out := r.Resolve("${a}")
		assert.Contains(t, out, "${")
	})

	t.Run("ResolveArgsDescends", func(t *testing.T) {
		r := NewResolver(map[string]string{"mod": "auth"})
		args := map[string]interface{}{
			"path": "src/${mod}",
			"nested": map[string]interface{}{
				"cmd": "test ${mod}",
			},
			"list":  []interface{}{"${mod}", 7},
			"count": 3,
		}

		out := r.ResolveArgs(args)
		assert.Equal(t, "src/auth", out["path"])
		assert.Equal(t, "test auth", out["nested"].(map[string]interface{})["cmd"])
		assert.Equal(t, []interface{}{"auth", 7}, out["list"])
		assert.Equal(t, 3, out["count"])

		// Input untouched.
		assert.Equal(t, "src/${mod}", args["path"])
	})

	t.Run("NilArgs", func(t *testing.T) {
		r := NewResolver(nil)
		assert.Nil(t, r.ResolveArgs(nil))
	})
}

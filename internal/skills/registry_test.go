package skills

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/cmdkit/pkg/schema"
)

func stubSkill(name string) *Skill {
	return &Skill{Name: name, Tool: "echo", Template: "echo " + name, Description: "says " + name}
}

func TestRegistry_Register(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Register(stubSkill("hello")))
	assert.Equal(t, 1, reg.Count())
	assert.True(t, reg.Has("hello"))
}

func TestRegistry_Register_Invalid(t *testing.T) {
	reg := NewRegistry()

	assert.True(t, schema.IsCode(reg.Register(nil), schema.ErrCodeValidation))
	assert.True(t, schema.IsCode(reg.Register(&Skill{Template: "ls"}), schema.ErrCodeValidation))
	assert.True(t, schema.IsCode(reg.Register(&Skill{Name: "x", Template: "  "}), schema.ErrCodeValidation))
}

func TestRegistry_Register_Duplicate(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Register(stubSkill("dup")))
	assert.True(t, schema.IsCode(reg.Register(stubSkill("dup")), schema.ErrCodeConflict))
}

func TestRegistry_Get(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Register(stubSkill("hello")))

	got, err := reg.Get("hello")
	require.NoError(t, err)
	assert.Equal(t, "echo hello", got.Template)

	_, err = reg.Get("missing")
	assert.True(t, schema.IsCode(err, schema.ErrCodeNotFound))
}

func TestRegistry_RegisterNamespace(t *testing.T) {
	reg := NewRegistry()
	src := []*Skill{stubSkill("a"), stubSkill("b")}

	n, err := reg.RegisterNamespace("demo", src)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.True(t, reg.Has("demo.a"))
	assert.True(t, reg.Has("demo.b"))
	assert.Equal(t, "a", src[0].Name, "source skills must not be renamed")

	n, err = reg.RegisterNamespace("demo", []*Skill{stubSkill("c"), stubSkill("a")})
	assert.Equal(t, 1, n)
	assert.True(t, schema.IsCode(err, schema.ErrCodeConflict))

	_, err = reg.RegisterNamespace("", src)
	assert.True(t, schema.IsCode(err, schema.ErrCodeValidation))
}

func TestRegistry_List(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Register(&Skill{Name: "z", Tool: "docker", Template: "docker ps"}))
	require.NoError(t, reg.Register(&Skill{Name: "a", Tool: "kubectl", Template: "kubectl get ns"}))

	all := reg.List("")
	require.Len(t, all, 2)
	assert.Equal(t, "a", all[0].Name)
	assert.Equal(t, "z", all[1].Name)

	docker := reg.List("docker")
	require.Len(t, docker, 1)
	assert.Equal(t, "z", docker[0].Name)
}

func TestRegistry_Concurrent(t *testing.T) {
	reg := NewRegistry()
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_ = reg.Register(stubSkill(string(rune('a' + i))))
			_ = reg.List("")
			_ = reg.Has("a")
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 20, reg.Count())
}

func TestRegisterBuiltins(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, RegisterBuiltins(reg))

	for _, name := range []string{
		"k8s.pods", "k8s.logs", "k8s.debug", "k8s.wait_ready", "k8s.delete_pod",
		"docker.ps", "docker.logs", "aws.whoami", "aws.s3.ls",
	} {
		assert.True(t, reg.Has(name), name)
	}
	assert.Len(t, reg.List(ToolKubectl), 5)

	assert.Error(t, RegisterBuiltins(reg))
}

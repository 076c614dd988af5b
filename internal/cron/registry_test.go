package cron

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

type stubJob struct {
	name string
}

func (s *stubJob) Name() string              { return s.name }
func (s *stubJob) Run(context.Context) error { return nil }

func TestRegistryKeepsOrderAndCopies(t *testing.T) {
	jobA, jobB := &stubJob{name: "auto-release"}, &stubJob{name: "stale-intents"}
	registry, err := NewRegistry(jobA, nil, jobB)
	require.NoError(t, err)

	jobs := registry.Jobs()
	require.Equal(t, []Job{jobA, jobB}, jobs)
	jobs[0] = nil
	require.NotNil(t, registry.Jobs()[0])
	require.Equal(t, []string{"auto-release", "stale-intents"}, registry.Names())
}

func TestRegistryRejectsDuplicateNames(t *testing.T) {
	_, err := NewRegistry(&stubJob{name: "auto-release"}, &stubJob{name: "auto-release"})
	require.ErrorContains(t, err, "registered twice")

	_, err = NewRegistry(&stubJob{name: " "})
	require.Error(t, err)
}

func TestRegistrySelect(t *testing.T) {
	registry, err := NewRegistry(&stubJob{name: "a"}, &stubJob{name: "b"}, &stubJob{name: "c"})
	require.NoError(t, err)

	selected, err := registry.Select("c", "a")
	require.NoError(t, err)
	require.Equal(t, []string{"a", "c"}, selected.Names())

	all, err := registry.Select()
	require.NoError(t, err)
	require.Len(t, all.Jobs(), 3)

	_, err = registry.Select("a", "zzz")
	require.ErrorContains(t, err, "zzz")
}

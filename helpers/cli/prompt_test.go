package cli

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestInputLoop(t *testing.T) {
	t.Parallel()

	type input struct {
		line string
		ok   bool
	}
	cases := []struct {
		name   string
		inputs []input
		expect []string
	}{
		{"ctrl-d", []input{{"read", true}, {"", true}, {" status ", true}, {"", false}, {"never", true}}, []string{"read", "status"}},
		{"quit", []input{{"on 1", true}, {"quit", true}, {"never", true}}, []string{"on 1", "quit"}},
	}
	for _, c := range cases {
		c := c
		t.Run(c.name, func(t *testing.T) {
			i := 0
			next := func() (string, bool) {
				in := c.inputs[i]
				i++
				return in.line, in.ok
			}
			var got []string
			InputLoop(next, func(line string) bool {
				got = append(got, line)
				return line != "quit"
			})
			assert.Equal(t, c.expect, got)
		})
	}
}

func TestExecReader(t *testing.T) {
	t.Parallel()
	var got []string
	ExecReader(strings.NewReader("read\n\n  R1ON \nquit\nstat\n"), func(line string) bool {
		got = append(got, line)
		return line != "quit"
	})
	assert.Equal(t, []string{"read", "R1ON", "quit"}, got)
}

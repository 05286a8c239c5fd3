package eventbus

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSubjectsBuildExpectedHierarchy(t *testing.T) {
	var s Subjects

	assert.Equal(t, "echo.workspace.w1", s.Workspace("w1"))
	assert.Equal(t, "echo.workspace.w1.channel.c1", s.Channel("w1", "c1"))
	assert.Equal(t, "echo.user.u1", s.User("u1"))
}

package release

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLayout_Paths(t *testing.T) {
	l := NewLayout("/webapps/app/", "src")

	assert.Equal(t, "/webapps/app", l.Base)
	assert.Equal(t, "/webapps/app/releases", l.Releases())
	assert.Equal(t, "/webapps/app/venv", l.Env())
	assert.Equal(t, "/webapps/app/logs", l.Logs())
	assert.Equal(t, "/webapps/app/media", l.Media())
	assert.Equal(t, "/webapps/app/src", l.Current())
	assert.Equal(t, "/webapps/app/.releaser.lock", l.Lock())
	assert.Equal(t, "/webapps/app/releases/1.2.0", l.Release("1.2.0"))
	assert.Equal(t, "/webapps/app/releases/1.2.0/venv", l.ReleaseEnv("1.2.0"))
	assert.Equal(t, "/webapps/app/releases/1.2.0/src", l.ReleaseSource("1.2.0"))
	assert.Equal(t, "/webapps/app/releases/1.2.0/media", l.ReleaseMedia("1.2.0"))
	assert.Equal(t, "/webapps/app/releases/1.2.0/crontab.txt", l.ReleaseCrontab("1.2.0"))
	assert.Equal(t, "/webapps/app/releases/1.2.0/src/requirements.txt", l.ReleaseFile("1.2.0", "src/requirements.txt"))
}

func TestLayout_DefaultSourceDir(t *testing.T) {
	l := NewLayout("/srv/x", "")

	assert.Equal(t, "/srv/x/src", l.Current())
}

func TestLayout_VersionOf(t *testing.T) {
	l := NewLayout("/webapps/app", "src")

	v, ok := l.VersionOf("/webapps/app/releases/1.2.0-rc.1/src")
	assert.True(t, ok)
	assert.Equal(t, "1.2.0-rc.1", v)

	v, ok = l.VersionOf("/webapps/app/releases/2.0.0")
	assert.True(t, ok)
	assert.Equal(t, "2.0.0", v)

	_, ok = l.VersionOf("/elsewhere/releases/1.0.0/src")
	assert.False(t, ok)

	_, ok = l.VersionOf("/webapps/app/releases/")
	assert.False(t, ok)
}

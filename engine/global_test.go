package engine

import (
	gc "gopkg.in/check.v1"
)

type GlobalSuite struct{}

func (s *GlobalSuite) TestConfigureIsOneShot(c *gc.C) {
	defer resetGlobal()
	resetGlobal()

	c.Check(Configure(Global{MemoryMapSize: 1 << 20}), gc.Equals, true)
	c.Check(GlobalConfig().MemoryMapSize, gc.Equals, int64(1<<20))

	// A second Configure is ignored and the first remains in effect.
	c.Check(Configure(Global{MemoryMapSize: 4 << 20}), gc.Equals, false)
	c.Check(GlobalConfig().MemoryMapSize, gc.Equals, int64(1<<20))
}

func (s *GlobalSuite) TestVFSHookDispatch(c *gc.C) {
	defer resetGlobal()
	resetGlobal()

	var opened []string
	Configure(Global{VFSOpened: func(path string) { opened = append(opened, path) }})

	NotifyVFSOpened("/tmp/a.db")
	NotifyVFSOpened("/tmp/a.db-wal")
	c.Check(opened, gc.DeepEquals, []string{"/tmp/a.db", "/tmp/a.db-wal"})
}

func (s *GlobalSuite) TestLogSinkDispatch(c *gc.C) {
	defer resetGlobal()
	resetGlobal()

	var gotCode Code
	var gotMsg string
	Configure(Global{Log: func(code Code, msg string) { gotCode, gotMsg = code, msg }})

	NotifyLog(CodeNotice, "recovered 12 frames")
	c.Check(gotCode, gc.Equals, CodeNotice)
	c.Check(gotMsg, gc.Equals, "recovered 12 frames")
}

var _ = gc.Suite(&GlobalSuite{})

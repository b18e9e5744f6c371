package engine

import (
	"testing"

	gc "gopkg.in/check.v1"
)

type CodesSuite struct{}

func (s *CodesSuite) TestPrimaryMasking(c *gc.C) {
	c.Check(CodeConstraintUnique.Primary(), gc.Equals, CodeConstraint)
	c.Check(CodeBusySnapshot.Primary(), gc.Equals, CodeBusy)
	c.Check(CodeReadOnlyCantLock.Primary(), gc.Equals, CodeReadOnly)
	c.Check(CodeOK.Primary(), gc.Equals, CodeOK)
}

func (s *CodesSuite) TestSuccessCodes(c *gc.C) {
	c.Check(CodeOK.OK(), gc.Equals, true)
	c.Check(CodeRow.OK(), gc.Equals, true)
	c.Check(CodeDone.OK(), gc.Equals, true)
	c.Check(CodeError.OK(), gc.Equals, false)
	c.Check(CodeBusy.OK(), gc.Equals, false)
}

func (s *CodesSuite) TestClassifiers(c *gc.C) {
	c.Check(CodeBusy.Busy(), gc.Equals, true)
	c.Check(CodeLocked.Busy(), gc.Equals, true)
	c.Check(CodeBusySnapshot.Busy(), gc.Equals, true)
	c.Check(CodeLockedSharedCache.Busy(), gc.Equals, true)
	c.Check(CodeConstraint.Busy(), gc.Equals, false)

	c.Check(CodeConstraint.Constraint(), gc.Equals, true)
	c.Check(CodeConstraintUnique.Constraint(), gc.Equals, true)

	c.Check(CodeCorrupt.Corrupt(), gc.Equals, true)
	c.Check(CodeNotADB.Corrupt(), gc.Equals, true)
	c.Check(CodeCorruptIndex.Corrupt(), gc.Equals, true)

	c.Check(CodeMisuse.Misuse(), gc.Equals, true)
	c.Check(CodeInterrupt.Interrupted(), gc.Equals, true)
	c.Check(CodeInterruptRetry.Interrupted(), gc.Equals, true)
}

func (s *CodesSuite) TestStringForms(c *gc.C) {
	c.Check(CodeOK.String(), gc.Equals, "OK")
	c.Check(CodeConstraint.String(), gc.Equals, "CONSTRAINT")
	c.Check(CodeConstraintUnique.String(), gc.Equals, "CONSTRAINT(8)")
	c.Check(CodeRow.String(), gc.Equals, "ROW")
	c.Check(Code(9999).String(), gc.Equals, "UNKNOWN(9999)")
}

func (s *CodesSuite) TestCheckpointModeStrings(c *gc.C) {
	c.Check(CheckpointPassive.String(), gc.Equals, "PASSIVE")
	c.Check(CheckpointTruncate.String(), gc.Equals, "TRUNCATE")
	c.Check(CheckpointMode(9).String(), gc.Equals, "INVALID")
}

var _ = gc.Suite(&CodesSuite{})

func Test(t *testing.T) { gc.TestingT(t) }

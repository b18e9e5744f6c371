package engine

import (
	"github.com/pkg/errors"
	gc "gopkg.in/check.v1"
)

type ErrorSuite struct{}

func (s *ErrorSuite) TestErrorRendering(c *gc.C) {
	var e = &Error{
		Code:    CodeConstraint,
		ExtCode: CodeConstraintUnique,
		Message: "UNIQUE constraint failed: t.id",
		SQL:     "INSERT INTO t VALUES (1)",
	}
	c.Check(e.Error(), gc.Equals,
		"engine error CONSTRAINT (extended CONSTRAINT(8)): "+
			"UNIQUE constraint failed: t.id [INSERT INTO t VALUES (1)]")

	c.Check((&Error{Code: CodeBusy}).Error(), gc.Equals, "engine error BUSY")
}

func (s *ErrorSuite) TestAsErrorUnwrapsCause(c *gc.C) {
	var e = &Error{Code: CodeCorrupt, Message: "malformed"}
	var wrapped = errors.WithMessage(e, "while stepping")

	c.Check(AsError(wrapped), gc.Equals, e)
	c.Check(AsError(errors.New("plain")), gc.IsNil)
	c.Check(AsError(nil), gc.IsNil)
}

func (s *ErrorSuite) TestErrCode(c *gc.C) {
	c.Check(ErrCode(nil), gc.Equals, CodeOK)
	c.Check(ErrCode(&Error{Code: CodeConstraintUnique}), gc.Equals, CodeConstraint)
	c.Check(ErrCode(errors.New("other")), gc.Equals, CodeError)
}

var _ = gc.Suite(&ErrorSuite{})

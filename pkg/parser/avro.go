package parser

import (
	"context"

	"github.com/datazip-inc/filetap/pkg/errs"
	"github.com/datazip-inc/filetap/types"
)

// AvroParser reserves the avro file type. Every operation fails with a
// not implemented error.
type AvroParser struct{}

func NewAvroParser() *AvroParser {
	return &AvroParser{}
}

func (p *AvroParser) InferSchema(_ context.Context, in Input) (*types.Schema, error) {
	return nil, errs.New(errs.NotImplemented, "avro is not supported yet").WithFile(in.File, 0)
}

func (p *AvroParser) StreamRecords(_ context.Context, in Input, _ *types.Schema, _ RecordCallback, _ ErrorHandler) error {
	return errs.New(errs.NotImplemented, "avro is not supported yet").WithFile(in.File, 0)
}

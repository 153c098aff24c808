package parser

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"math/big"
	"os"
	"strings"
	"time"
	"unicode/utf8"

	pq "github.com/parquet-go/parquet-go"
	"github.com/shopspring/decimal"

	"github.com/datazip-inc/filetap/pkg/errs"
	"github.com/datazip-inc/filetap/types"
	"github.com/datazip-inc/filetap/utils"
	"github.com/datazip-inc/filetap/utils/logger"
)

const parquetRowBatch = 256

// ParquetParser implements the Parser interface for Parquet files
// Parquet schema inference doesn't need to read data, just metadata
type ParquetParser struct {
	spoolDir string
}

func NewParquetParser(cfg Config) *ParquetParser {
	return &ParquetParser{spoolDir: cfg.SpoolDir}
}

// open needs random access; decoded streams are spooled to a temp file first
func (p *ParquetParser) open(in Input) (*pq.File, func(), error) {
	cleanup := func() {}
	readerAt, fileSize, err := prepareParquetReader(in.Reader)
	if err != nil {
		spooled, err := utils.SpoolToTemp(p.spoolDir, in.Reader)
		if err != nil {
			return nil, nil, err
		}
		cleanup = func() { utils.RemoveFile(spooled) }
		info, err := spooled.Stat()
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("failed to stat spooled parquet file: %s", err)
		}
		readerAt, fileSize = spooled, info.Size()
	}
	if fileSize == 0 {
		cleanup()
		return nil, nil, ErrNoSample
	}

	pqFile, err := pq.OpenFile(readerAt, fileSize)
	if err != nil {
		cleanup()
		return nil, nil, errs.Wrap(errs.MalformedRecord, err, "failed to open parquet file").WithFile(in.File, 0)
	}
	return pqFile, cleanup, nil
}

// InferSchema reads Parquet file metadata to infer the schema
func (p *ParquetParser) InferSchema(_ context.Context, in Input) (*types.Schema, error) {
	logger.Debugf("Inferring Parquet schema from metadata of %s", in.File)

	pqFile, cleanup, err := p.open(in)
	if err != nil {
		return nil, err
	}
	defer cleanup()

	schema := types.NewSchema()
	fields := pqFile.Schema().Fields()
	for _, field := range fields {
		if err := schema.UpsertField(field.Name(), mapParquetType(field), field.Optional()); err != nil {
			return nil, err
		}
	}

	logger.Infof("Inferred schema with %d fields from Parquet file %s", len(fields), in.File)
	return schema, nil
}

// StreamRecords reads row groups one at a time to bound memory
func (p *ParquetParser) StreamRecords(ctx context.Context, in Input, schema *types.Schema, callback RecordCallback, onError ErrorHandler) error {
	onError = handlerOrDefault(onError)

	pqFile, cleanup, err := p.open(in)
	if err == ErrNoSample {
		return nil
	}
	if err != nil {
		return err
	}
	defer cleanup()

	fields := schema.Fields()
	fieldIndex := make(map[string]int, len(fields))
	for i, f := range fields {
		fieldIndex[f] = i
	}

	// leaf column index -> schema field, node and nested key
	pqSchema := pqFile.Schema()
	columns := pqSchema.Columns()
	leaves := make([]parquetLeaf, len(columns))
	for i, path := range columns {
		leaf, _ := pqSchema.Lookup(path...)
		idx, found := fieldIndex[path[0]]
		if !found {
			idx = -1
		}
		leaves[i] = parquetLeaf{
			field:  idx,
			node:   leaf.Node,
			key:    strings.Join(path[1:], "."),
			nested: len(path) > 1,
		}
	}

	rowNumber := 0
	rowGroups := pqFile.RowGroups()
	for rgIdx, rowGroup := range rowGroups {
		logger.Debugf("Processing row group %d/%d (approx %d rows)", rgIdx+1, len(rowGroups), rowGroup.NumRows())

		err := func() error {
			rows := rowGroup.Rows()
			defer rows.Close()

			buf := make([]pq.Row, parquetRowBatch)
			for {
				if err := ctx.Err(); err != nil {
					return err
				}
				n, readErr := rows.ReadRows(buf)
				for _, row := range buf[:n] {
					rowNumber++
					values := make([]any, len(fields))
					for _, v := range row {
						leaf := leaves[v.Column()]
						if leaf.field < 0 {
							continue
						}
						leaf.assign(values, v)
					}
					if err := callback(ctx, types.NewRecord(in.File, rowNumber, fields, values)); err != nil {
						return err
					}
				}
				if readErr == io.EOF {
					return nil
				}
				if readErr != nil {
					return errs.Wrap(errs.MalformedRecord, readErr, "failed to read row group %d", rgIdx).WithFile(in.File, rowNumber+1)
				}
			}
		}()
		if e, ok := errs.As(err); ok && e.Kind.Tolerable() {
			// the rest of a broken row group is unreadable, move to the next one
			if herr := onError(e); herr != nil {
				return herr
			}
			continue
		}
		if err != nil {
			return err
		}
	}

	logger.Infof("Processed %d records from Parquet file %s", rowNumber, in.File)
	return nil
}

type parquetLeaf struct {
	field  int
	node   pq.Node
	key    string
	nested bool
}

// assign places a leaf value into its field. Repeated leaves collect into a
// list; leaves of nested groups collect into an object keyed by their path.
func (l parquetLeaf) assign(values []any, v pq.Value) {
	value := parquetValue(v, l.node.Type())
	if !l.nested {
		if l.node.Repeated() {
			if v.IsNull() {
				return
			}
			list, _ := values[l.field].([]any)
			values[l.field] = append(list, value)
			return
		}
		values[l.field] = value
		return
	}

	if v.IsNull() {
		return
	}
	obj, ok := values[l.field].(map[string]any)
	if !ok {
		obj = map[string]any{}
		values[l.field] = obj
	}
	if existing, found := obj[l.key]; found {
		list, isList := existing.([]any)
		if !isList {
			list = []any{existing}
		}
		obj[l.key] = append(list, value)
		return
	}
	obj[l.key] = value
}

// mapParquetType maps a top-level Parquet field to a schema data type
func mapParquetType(field pq.Field) types.DataType {
	if field.Repeated() {
		return types.Array
	}
	pqType := field.Type()
	if logicalType := pqType.LogicalType(); logicalType != nil {
		switch {
		case logicalType.List != nil:
			return types.Array
		case logicalType.Map != nil:
			return types.Object
		case logicalType.Integer != nil, logicalType.Time != nil:
			return types.Int64
		// rendered as RFC3339 strings
		case logicalType.Timestamp != nil, logicalType.Date != nil:
			return types.String
		case logicalType.Decimal != nil:
			return types.Float64
		case logicalType.UTF8 != nil, logicalType.Json != nil, logicalType.UUID != nil,
			logicalType.Enum != nil, logicalType.Bson != nil:
			return types.String
		}
	}
	if !field.Leaf() {
		return types.Object
	}

	switch pqType.Kind() {
	case pq.Boolean:
		return types.Bool
	case pq.Int32, pq.Int64:
		return types.Int64
	case pq.Float, pq.Double:
		return types.Float64
	case pq.Int96, pq.ByteArray, pq.FixedLenByteArray:
		return types.String
	default:
		logger.Warnf("Unknown Parquet type %v, defaulting to string", pqType.Kind())
		return types.String
	}
}

// parquetValue converts a parquet.Value to a Go value of the mapped type
func parquetValue(val pq.Value, fieldType pq.Type) any {
	if val.IsNull() {
		return nil
	}

	if logicalType := fieldType.LogicalType(); logicalType != nil {
		// days since Unix epoch, stored as INT32
		if logicalType.Date != nil {
			return time.Unix(int64(val.Int32())*86400, 0).UTC().Format(time.RFC3339)
		}

		if logicalType.Timestamp != nil {
			rawValue := val.Int64()
			var t time.Time
			switch unit := logicalType.Timestamp.Unit; {
			case unit.Nanos != nil:
				t = time.Unix(0, rawValue).UTC()
			case unit.Micros != nil:
				t = time.UnixMicro(rawValue).UTC()
			case unit.Millis != nil:
				t = time.UnixMilli(rawValue).UTC()
			default:
				t = time.Unix(rawValue, 0).UTC()
			}
			return t.Format(time.RFC3339Nano)
		}

		// time of day, converted to seconds
		if logicalType.Time != nil {
			rawValue := val.Int64()
			if val.Kind() == pq.Int32 {
				rawValue = int64(val.Int32())
			}
			switch unit := logicalType.Time.Unit; {
			case unit.Nanos != nil:
				return rawValue / 1_000_000_000
			case unit.Micros != nil:
				return rawValue / 1_000_000
			case unit.Millis != nil:
				return rawValue / 1_000
			default:
				return rawValue
			}
		}

		if logicalType.Decimal != nil {
			dec, err := decodeParquetDecimal(val, logicalType.Decimal.Scale)
			if err != nil {
				logger.Warnf("decimal decode failed: %v", err)
				return nil
			}
			v, _ := dec.Float64()
			return v
		}
	}

	switch val.Kind() {
	case pq.Boolean:
		return val.Boolean()
	case pq.Int32:
		return int64(val.Int32())
	case pq.Int64:
		return val.Int64()
	case pq.Float:
		return float64(val.Float())
	case pq.Double:
		return val.Double()
	case pq.ByteArray, pq.FixedLenByteArray:
		byteData := val.ByteArray()
		if utf8.Valid(byteData) {
			return string(byteData)
		}
		return base64.StdEncoding.EncodeToString(byteData)
	default:
		// Int96 legacy timestamps and anything else use the library's rendering
		return val.String()
	}
}

func decodeParquetDecimal(val pq.Value, scale int32) (decimal.Decimal, error) {
	var unscaled *big.Int

	switch val.Kind() {
	case pq.Int32:
		unscaled = big.NewInt(int64(val.Int32()))
	case pq.Int64:
		unscaled = big.NewInt(val.Int64())
	case pq.FixedLenByteArray, pq.ByteArray:
		raw := val.ByteArray()
		if len(raw) == 0 {
			return decimal.Zero, nil
		}
		unscaled = new(big.Int).SetBytes(raw)
		// two's complement (signed)
		if raw[0]&0x80 != 0 {
			bitLen := uint(len(raw) * 8)
			modulus := new(big.Int).Lsh(big.NewInt(1), bitLen)
			unscaled.Sub(unscaled, modulus)
		}
	default:
		return decimal.Zero, fmt.Errorf("unsupported decimal kind: %v", val.Kind())
	}

	return decimal.NewFromBigInt(unscaled, -scale), nil
}

// prepareParquetReader returns the input directly when it already supports
// random access, e.g. an uncompressed local file
func prepareParquetReader(reader io.Reader) (io.ReaderAt, int64, error) {
	if f, ok := reader.(*os.File); ok {
		info, err := f.Stat()
		if err != nil {
			return nil, 0, err
		}
		return f, info.Size(), nil
	}

	readerAt, ok := reader.(io.ReaderAt)
	if !ok {
		return nil, 0, fmt.Errorf("parquet parser requires io.ReaderAt, got %T", reader)
	}
	seeker, ok := reader.(io.Seeker)
	if !ok {
		return nil, 0, fmt.Errorf("parquet parser requires io.Seeker to determine file size")
	}
	size, err := seeker.Seek(0, io.SeekEnd)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to determine file size: %w", err)
	}
	if _, err := seeker.Seek(0, io.SeekStart); err != nil {
		return nil, 0, fmt.Errorf("failed to seek to start: %w", err)
	}
	return readerAt, size, nil
}

package adapter

import "context"

// QueryModeAll asks the proxy for the full positional row set; any
// other mode executes the statement and returns metadata only.
const QueryModeAll = "all"

// ProxyResult is the query-builder-facing result shape: positional
// value tuples in column order instead of named-column rows.
type ProxyResult struct {
	Rows    [][]any
	Changes int64
}

// Connection is the compatibility shim handed to the generic
// query-builder consumer. It adds no invariants of its own; it only
// reshapes executor results.
type Connection struct {
	adapter *Adapter
}

// GetConnection returns the proxy over this adapter.
func (a *Adapter) GetConnection() *Connection {
	return &Connection{adapter: a}
}

func (c *Connection) Query(ctx context.Context, stmt string, params []any, mode string) (ProxyResult, error) {
	res, err := c.adapter.Execute(ctx, stmt, params...)
	if err != nil {
		return ProxyResult{}, err
	}
	if mode != QueryModeAll {
		return ProxyResult{Changes: res.Changes}, nil
	}

	tuples := make([][]any, len(res.Rows))
	for i, row := range res.Rows {
		tuple := make([]any, len(res.Columns))
		for j, column := range res.Columns {
			tuple[j] = row[column]
		}
		tuples[i] = tuple
	}
	return ProxyResult{Rows: tuples, Changes: res.Changes}, nil
}

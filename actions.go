package anansi

import "strconv"

// ActionKind identifies the operation an Action requests.
type ActionKind uint8

// Action kinds.
const (
	KindGetRecords ActionKind = iota + 1
	KindGetCount
	KindSaveRecord
	KindSaveCollection
	KindDeleteRecord
	KindDeleteCollection
	KindMakeStoreValue
)

var kindNames = [...]string{
	KindGetRecords:       "get_records",
	KindGetCount:         "get_count",
	KindSaveRecord:       "save_record",
	KindSaveCollection:   "save_collection",
	KindDeleteRecord:     "delete_record",
	KindDeleteCollection: "delete_collection",
	KindMakeStoreValue:   "make_store_value",
}

func (k ActionKind) String() string {
	if int(k) < len(kindNames) && kindNames[k] != "" {
		return kindNames[k]
	}
	return "action(" + strconv.Itoa(int(k)) + ")"
}

// IsMutation reports whether the kind changes stored data.
func (k ActionKind) IsMutation() bool {
	switch k {
	case KindSaveRecord, KindSaveCollection, KindDeleteRecord, KindDeleteCollection:
		return true
	}
	return false
}

// Action is a request flowing through a store pipeline.
type Action interface {
	Kind() ActionKind
	// Target returns the schema the action operates on, if known.
	Target() *Schema
	// Options returns the context of the action, never nil after dispatch.
	Options() *Context
}

// GetRecordsAction fetches the rows of a schema.
type GetRecordsAction struct {
	Schema  *Schema
	Context *Context
}

func (a *GetRecordsAction) Kind() ActionKind  { return KindGetRecords }
func (a *GetRecordsAction) Target() *Schema   { return a.Schema }
func (a *GetRecordsAction) Options() *Context { return ensureContext(&a.Context) }

// GetCountAction counts the rows of a schema.
type GetCountAction struct {
	Schema  *Schema
	Context *Context
}

func (a *GetCountAction) Kind() ActionKind  { return KindGetCount }
func (a *GetCountAction) Target() *Schema   { return a.Schema }
func (a *GetCountAction) Options() *Context { return ensureContext(&a.Context) }

// SaveRecordAction creates or updates a record.
type SaveRecordAction struct {
	Record  *Model
	Context *Context
}

func (a *SaveRecordAction) Kind() ActionKind  { return KindSaveRecord }
func (a *SaveRecordAction) Target() *Schema   { return a.Record.Schema() }
func (a *SaveRecordAction) Options() *Context { return ensureContext(&a.Context) }

// SaveCollectionAction saves every record of a collection.
type SaveCollectionAction struct {
	Collection *Collection
	Context    *Context
}

func (a *SaveCollectionAction) Kind() ActionKind  { return KindSaveCollection }
func (a *SaveCollectionAction) Target() *Schema   { return a.Collection.Schema() }
func (a *SaveCollectionAction) Options() *Context { return ensureContext(&a.Context) }

// DeleteRecordAction deletes a record.
type DeleteRecordAction struct {
	Record  *Model
	Context *Context
}

func (a *DeleteRecordAction) Kind() ActionKind  { return KindDeleteRecord }
func (a *DeleteRecordAction) Target() *Schema   { return a.Record.Schema() }
func (a *DeleteRecordAction) Options() *Context { return ensureContext(&a.Context) }

// DeleteCollectionAction deletes the records of a collection.
type DeleteCollectionAction struct {
	Collection *Collection
	Context    *Context
}

func (a *DeleteCollectionAction) Kind() ActionKind  { return KindDeleteCollection }
func (a *DeleteCollectionAction) Target() *Schema   { return a.Collection.Schema() }
func (a *DeleteCollectionAction) Options() *Context { return ensureContext(&a.Context) }

// MakeStoreValueAction converts a runtime value to a storage value.
type MakeStoreValueAction struct {
	Value   any
	Context *Context
}

func (a *MakeStoreValueAction) Kind() ActionKind  { return KindMakeStoreValue }
func (a *MakeStoreValueAction) Target() *Schema   { return nil }
func (a *MakeStoreValueAction) Options() *Context { return ensureContext(&a.Context) }

func ensureContext(c **Context) *Context {
	if *c == nil {
		*c = MakeContext()
	}
	return *c
}

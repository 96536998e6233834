package registry

import (
	"errors"
	"fmt"
	"strings"
)

const maxCodeLength = 190

var (
	// ErrInvalidBundleCode indicates that a bundle code is empty or exceeds storage bounds.
	ErrInvalidBundleCode = errors.New("registry: invalid bundle code")
	// ErrBundleNotFound indicates that no bundle row matched the requested code.
	ErrBundleNotFound = errors.New("registry: bundle not found")
	// ErrEmptyBundleUpdate indicates that a partial update carried no allowed field.
	ErrEmptyBundleUpdate = errors.New("registry: no updatable fields provided")
)

// BundleCode represents a validated bundle identifier.
type BundleCode string

// NewBundleCode validates raw input and returns a BundleCode.
func NewBundleCode(rawInput string) (BundleCode, error) {
	trimmed := strings.TrimSpace(rawInput)
	if trimmed == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidBundleCode)
	}
	if len(trimmed) > maxCodeLength {
		return "", fmt.Errorf("%w: exceeds %d characters", ErrInvalidBundleCode, maxCodeLength)
	}
	return BundleCode(trimmed), nil
}

// String returns the underlying string identifier.
func (code BundleCode) String() string {
	return string(code)
}

// Bundle models a named collection of file references.
type Bundle struct {
	Code              string `gorm:"column:id;primaryKey;size:190;not null" json:"id"`
	OwnerID           string `gorm:"column:owner_id;size:190;not null;default:''" json:"owner_id"`
	OwnerName         string `gorm:"column:owner_name;not null;default:''" json:"owner_name"`
	HeaderChatID      string `gorm:"column:header_chat_id;size:190;not null;default:''" json:"header_chat_id"`
	HeaderMsgID       int64  `gorm:"column:header_msg_id;not null;default:0" json:"header_msg_id"`
	CreatedAtMillis   int64  `gorm:"column:created_at;not null" json:"created_at"`
	FinalizedAtMillis *int64 `gorm:"column:finalized_at" json:"finalized_at"`
	FilesCount        int64  `gorm:"column:files_count;not null;default:0" json:"files_count"`
}

// TableName provides the explicit table binding for GORM.
func (Bundle) TableName() string {
	return "bundles"
}

// Finalized reports whether the bundle has been closed.
func (b Bundle) Finalized() bool {
	return b.FinalizedAtMillis != nil
}

// File models a single entry attached to a bundle. The code reference is not
// enforced: a file may point at a bundle that does not exist.
type File struct {
	ID            int64  `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	Code          string `gorm:"column:code;size:190;not null;index:idx_files_code" json:"code"`
	ChannelMsgID  int64  `gorm:"column:channel_msg_id;not null;default:0" json:"channel_msg_id"`
	HeaderChatID  string `gorm:"column:header_chat_id;size:190;not null;default:''" json:"header_chat_id"`
	Caption       string `gorm:"column:caption;not null;default:''" json:"caption"`
	AddedAtMillis int64  `gorm:"column:added_at;not null" json:"added_at"`
}

// TableName provides the explicit table binding for GORM.
func (File) TableName() string {
	return "files"
}

// BundleUpdate enumerates the fields a partial update may touch. Nil fields
// are left untouched; a pointer to the zero value writes the zero value.
type BundleUpdate struct {
	FinalizedAtMillis *int64
	FilesCount        *int64
	HeaderMsgID       *int64
	HeaderChatID      *string
	OwnerName         *string
	OwnerID           *string
}

// Empty reports whether the update carries no field at all.
func (u BundleUpdate) Empty() bool {
	return u.FinalizedAtMillis == nil &&
		u.FilesCount == nil &&
		u.HeaderMsgID == nil &&
		u.HeaderChatID == nil &&
		u.OwnerName == nil &&
		u.OwnerID == nil
}

func (u BundleUpdate) columns() map[string]any {
	columns := make(map[string]any)
	if u.FinalizedAtMillis != nil {
		columns["finalized_at"] = *u.FinalizedAtMillis
	}
	if u.FilesCount != nil {
		columns["files_count"] = *u.FilesCount
	}
	if u.HeaderMsgID != nil {
		columns["header_msg_id"] = *u.HeaderMsgID
	}
	if u.HeaderChatID != nil {
		columns["header_chat_id"] = *u.HeaderChatID
	}
	if u.OwnerName != nil {
		columns["owner_name"] = *u.OwnerName
	}
	if u.OwnerID != nil {
		columns["owner_id"] = *u.OwnerID
	}
	return columns
}

// CreateBundleRequest describes the input supplied when registering a bundle.
type CreateBundleRequest struct {
	Code            string
	OwnerID         string
	OwnerName       string
	HeaderChatID    string
	HeaderMsgID     int64
	CreatedAtMillis int64
}

// AddFileRequest describes the input supplied when attaching a file entry.
type AddFileRequest struct {
	Code          BundleCode
	ChannelMsgID  int64
	HeaderChatID  string
	Caption       string
	AddedAtMillis int64
}

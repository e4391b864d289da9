// Package dashboard はダッシュボードのビュー一覧とロールによる表示制御を提供する。
package dashboard

import (
	"errors"

	"github.com/hitoshi/brandshield/internal/model"
)

var (
	// ErrViewNotFound は存在しないビューIDを指定した場合のエラー。
	ErrViewNotFound = errors.New("view not found")
	// ErrForbidden は管理者専用ビューを一般ユーザーが要求した場合のエラー。
	ErrForbidden = errors.New("view requires admin role")
)

// DefaultView はビュー未指定時に表示するビューID。
const DefaultView = "overview"

// View はサイドバーから選択できる画面。
type View struct {
	ID        string `json:"id"`
	Label     string `json:"label"`
	AdminOnly bool   `json:"adminOnly"`
	// InSidebar がfalseのビューはメニューに出さず、直接指定でのみ開ける。
	InSidebar bool `json:"inSidebar"`
}

var catalogue = []View{
	{ID: "overview", Label: "Overview", InSidebar: true},
	{ID: "monitoring", Label: "Monitoring", InSidebar: true},
	{ID: "keywords", Label: "Keywords", InSidebar: true},
	{ID: "cases", Label: "Cases", InSidebar: true},
	{ID: "alerts", Label: "Alerts", InSidebar: true},
	{ID: "integrations", Label: "Integrations"},
	{ID: "users", Label: "Users", AdminOnly: true, InSidebar: true},
	{ID: "settings", Label: "Settings", AdminOnly: true, InSidebar: true},
}

// Catalogue はビュー一覧を返す。
type Catalogue struct {
	views []View
}

// NewCatalogue は標準のビュー一覧でCatalogueを生成する。
func NewCatalogue() *Catalogue {
	views := make([]View, len(catalogue))
	copy(views, catalogue)
	return &Catalogue{views: views}
}

// Visible はidentityが閲覧できるビューを表示順に返す。
func (c *Catalogue) Visible(identity *model.Identity) []View {
	out := make([]View, 0, len(c.views))
	for _, v := range c.views {
		if v.AdminOnly && !identity.IsAdmin() {
			continue
		}
		out = append(out, v)
	}
	return out
}

// Get はビューを1件返す。
// 未知のIDはErrViewNotFound、権限不足はErrForbiddenを返す。
func (c *Catalogue) Get(identity *model.Identity, id string) (*View, error) {
	if id == "" {
		id = DefaultView
	}
	for _, v := range c.views {
		if v.ID != id {
			continue
		}
		if v.AdminOnly && !identity.IsAdmin() {
			return nil, ErrForbidden
		}
		view := v
		return &view, nil
	}
	return nil, ErrViewNotFound
}

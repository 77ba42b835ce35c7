// Package presenters builds concrete state engines for the user-facing
// screens.
//
// MangaPresenter follows one manga: its row, its chapters and the revision
// of its source catalogue. It initializes the manga once and keeps chapters
// in sync with the source as best-effort effects, so a failing source never
// breaks the view.
//
// InstallPresenter follows a set of extension installs, one step tracker
// per package.
package presenters

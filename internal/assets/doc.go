// Package assets loads preview styles and the font catalog.
//
// Three loaders implement AssetLoader:
//
//   - EmbeddedLoader serves the preview style compiled into the binary.
//   - FilesystemLoader serves {base}/styles/*.css and {base}/fonts/*.ttf.
//   - Resolver chains loaders, the first one holding an asset wins.
//
// Asset names are bare file stems. Names carrying separators or dots are
// rejected before any file is touched, and FilesystemLoader reads through
// an os.Root so symlinks cannot lead outside the asset directory.
package assets

package types

// LocationKind 区分“内容位置”和“链接位置”
// 由目录层级决定，而不是看路径里有没有 "blobs" 子串
type LocationKind int

const (
	// Canonical: blobs/<alg>/<shard>/<hex>，唯一允许读取内容的位置
	Canonical LocationKind = iota
	// LayerLink: repositories/<name>/_layers/<alg>/<hex>
	LayerLink
	// RevisionLink: repositories/<name>/_manifests/revisions/<alg>/<hex>
	RevisionLink
	// TagIndexLink: repositories/<name>/_manifests/tags/<tag>/index/<alg>/<hex>
	TagIndexLink
)

func (k LocationKind) String() string {
	switch k {
	case Canonical:
		return "blob"
	case LayerLink:
		return "layer-link"
	case RevisionLink:
		return "revision-link"
	case TagIndexLink:
		return "tag-index-link"
	default:
		return "unknown"
	}
}

// BlobLocation 是与某个 Digest 关联的一个存储路径
// Path 相对于存储根目录，使用 "/" 分隔
type BlobLocation struct {
	Path       string
	Kind       LocationKind
	Repository string // Canonical 位置为空
}

func (l BlobLocation) IsCanonical() bool { return l.Kind == Canonical }

func (l BlobLocation) String() string { return l.Path }

// Package layout builds the relative paths of the registry v2 storage tree:
//
//	blobs/<alg>/<shard>/<hex>/data
//	repositories/<name>/_layers/<alg>/<hex>/link
//	repositories/<name>/_manifests/revisions/<alg>/<hex>/link
//	repositories/<name>/_manifests/tags/<tag>/current/link
//	repositories/<name>/_manifests/tags/<tag>/index/<alg>/<hex>/link
//
// All paths are slash separated and relative to the storage root so they can be
// used unchanged by the disk and the S3 driver.
package layout

import (
	"path"

	"regsweep/pkg/types"
)

const (
	BlobsDir        = "blobs"
	RepositoriesDir = "repositories"

	LayersDir    = "_layers"
	ManifestsDir = "_manifests"
	RevisionsDir = "revisions"
	TagsDir      = "tags"
	CurrentDir   = "current"
	TagIndexDir  = "index"

	// DataFile 是 canonical 目录中保存实际内容的文件
	DataFile = "data"
	// LinkFile 是 current 目录中保存 digest 引用的文件
	LinkFile = "link"
)

func BlobAlgorithm(alg string) string { return path.Join(BlobsDir, alg) }

func BlobShard(alg, shard string) string { return path.Join(BlobsDir, alg, shard) }

// BlobDir 返回 canonical 位置 (删除目标)
// 分片规则与写入方一致：取 hex 的前 2 个字符
func BlobDir(d types.Digest) string {
	return path.Join(BlobsDir, d.Algorithm, shard(d.Hex), d.Hex)
}

// BlobData 返回 canonical 位置下的内容文件
func BlobData(loc types.BlobLocation) string {
	return path.Join(loc.Path, DataFile)
}

func shard(hex string) string {
	if len(hex) < 2 {
		return hex
	}
	return hex[:2]
}

func Repository(name string) string { return path.Join(RepositoriesDir, name) }

func Layers(repo string) string { return path.Join(RepositoriesDir, repo, LayersDir) }

func Revisions(repo string) string {
	return path.Join(RepositoriesDir, repo, ManifestsDir, RevisionsDir)
}

func Tags(repo string) string { return path.Join(RepositoriesDir, repo, ManifestsDir, TagsDir) }

func Tag(repo, tag string) string { return path.Join(Tags(repo), tag) }

func TagCurrentLink(repo, tag string) string {
	return path.Join(Tag(repo, tag), CurrentDir, LinkFile)
}

func TagIndex(repo, tag string) string { return path.Join(Tag(repo, tag), TagIndexDir) }

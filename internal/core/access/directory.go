package access

import "context"

// Directory は組織ディレクトリ（社員プロファイルと上長関係）の抽象です。
type Directory interface {
	FindProfileByID(ctx context.Context, id string) (*Profile, error)
	FindProfileByUserID(ctx context.Context, userID string) (*Profile, error)
	// ListDirectReports は managerIDs の直属部下を companyID 内に限って返します。
	ListDirectReports(ctx context.Context, companyID string, managerIDs []string) ([]*Profile, error)
	CreateProfile(ctx context.Context, profile *Profile) (*Profile, error)
}

// DownlineCache は部下集合の計算結果を保持するキャッシュです。
type DownlineCache interface {
	GetDownline(ctx context.Context, companyID, profileID string) ([]string, bool, error)
	SetDownline(ctx context.Context, companyID, profileID string, ids []string) error
}

package mode

import (
	"github.com/wolfeidau/sitepack/internal/fragment"
	"github.com/wolfeidau/sitepack/internal/preset"
)

// Rule names used by the base fragment.
const (
	RuleScript = "script"
	RuleStyle  = "style"
	RuleImage  = "image"
	RuleFont   = "font"
)

// Loader and plugin names the overlays depend on.
const (
	LoaderThread     = "thread-loader"
	LoaderBabel      = "babel-loader"
	LoaderCSS        = "css-loader"
	LoaderPostCSS    = "postcss-loader"
	LoaderLess       = "less-loader"
	LoaderStyle      = "style-loader"
	LoaderCSSExtract = "css-extract"
	LoaderRefresh    = "react-refresh"

	PluginProgress       = "progress"
	PluginHMR            = "hot-module-replacement"
	PluginReactRefresh   = "react-refresh"
	PluginCSSExtract     = "css-extract"
	PluginTerser         = "terser"
	PluginCSSMinimizer   = "css-minimizer"
	PluginBundleAnalyzer = "bundle-analyzer"
)

// base returns the mode independent fragment. A new value is built on
// every call.
func base(presets preset.Provider) fragment.Fragment {
	return fragment.Fragment{
		Output: fragment.Output{
			Filename:            "js/[name].js",
			ChunkFilename:       "js/[name].[chunkhash:8].js",
			AssetModuleFilename: "asset/[name].[contenthash:8].[ext]",
		},
		Optimization: fragment.Optimization{
			RuntimeChunk: fragment.Bool(true),
			SplitChunks: &fragment.SplitChunks{
				Chunks: "all",
				CacheGroups: map[string]fragment.CacheGroup{
					"reactBase": {
						Name:   "reactBase",
						Chunks: "all",
						Test:   `[\\/]node_modules[\\/](react|react-dom|react-router|react-redux|react-router-dom)[\\/]`,
					},
					"async-commons": {
						Name:      "async-commons",
						Chunks:    "async",
						Test:      `[\\/]node_modules[\\/]`,
						MinChunks: 2,
						Priority:  1,
					},
					"default": {
						Name:     "default",
						Priority: -20,
					},
				},
			},
		},
		Module: fragment.Module{
			Rules: []fragment.Rule{
				{
					Name:    RuleScript,
					Test:    []string{".js", ".jsx", ".ts", ".tsx"},
					Exclude: []string{"node_modules"},
					Use: []fragment.Step{
						{Loader: LoaderThread},
						{Loader: LoaderBabel, Options: presets.Options().StepOptions()},
					},
				},
				{
					Name: RuleStyle,
					Test: []string{".less"},
					Use: []fragment.Step{
						{Loader: LoaderCSS, Options: map[string]any{"importLoaders": 2}},
						{Loader: LoaderPostCSS, Options: map[string]any{
							"plugins": []any{
								"postcss-flexbugs-fixes",
								map[string]any{
									"name":  "postcss-preset-env",
									"stage": 3,
									"autoprefixer": map[string]any{
										"flexbox": "no-2009",
									},
								},
							},
						}},
						{Loader: LoaderLess, Options: map[string]any{
							"lessOptions": map[string]any{"javascriptEnabled": true},
						}},
					},
				},
				{
					Name:           RuleImage,
					Test:           []string{".bmp", ".gif", ".jpg", ".jpeg", ".png"},
					Type:           "asset",
					DataURLMaxSize: 4 * 1024,
				},
				{
					Name: RuleFont,
					Test: []string{".eot", ".svg", ".ttf", ".woff", ".woff2"},
					Type: "asset/resource",
				},
			},
		},
		Resolve: fragment.Resolve{
			Extensions: []string{".ts", ".tsx", ".js", ".jsx", ".less", ".svg"},
		},
		Plugins: []fragment.Plugin{
			{Name: PluginProgress},
		},
	}
}

func developmentOverlay(buildDependencies []string) fragment.Fragment {
	return fragment.Fragment{
		Mode:    "development",
		Devtool: "eval-cheap-source-map",
		Output: fragment.Output{
			PublicPath: "/",
		},
		Plugins: []fragment.Plugin{
			{Name: PluginHMR},
			{Name: PluginReactRefresh},
		},
		Optimization: fragment.Optimization{
			Minimize: fragment.Bool(false),
		},
		Cache: &fragment.Cache{
			Type:              "filesystem",
			BuildDependencies: buildDependencies,
		},
	}
}

func productionOverlay() fragment.Fragment {
	return fragment.Fragment{
		Mode:    "production",
		Devtool: "hidden-source-map",
		Output: fragment.Output{
			Filename:      "js/[name].js",
			ChunkFilename: "js/[name].[chunkhash:8].js",
			PublicPath:    "./",
		},
		Plugins: []fragment.Plugin{
			{Name: PluginCSSExtract, Options: map[string]any{
				"filename":      "stylesheet/[name].[contenthash:8].css",
				"chunkFilename": "stylesheet/[id].[contenthash:8].css",
			}},
		},
	}
}

func minimizers() []fragment.Plugin {
	return []fragment.Plugin{
		{Name: PluginTerser, Options: map[string]any{
			"parallel": true,
			"exclude":  "node_modules",
		}},
		{Name: PluginCSSMinimizer, Options: map[string]any{
			"parallel": true,
			"preset": []any{"default", map[string]any{
				"discardComments": map[string]any{"removeAll": true},
			}},
		}},
	}
}

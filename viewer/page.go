/*
Copyright © 2024 the Pan3D authors.
This file is part of Pan3D.

Pan3D is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

Pan3D is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with Pan3D.  If not, see <http://www.gnu.org/licenses/>.
*/

package viewer

// pageHTML is the browser interface. Form controls are bound to state
// keys; edits are sent back as state changes or triggers.
const pageHTML = `<!DOCTYPE html>
<html>
<head>
	<meta charset="utf-8">
	<title>Pan3D Viewer</title>
	<style>
		html, body { margin: 0; height: 100%; font-family: sans-serif; font-size: 14px; }
		#toolbar { display: flex; align-items: center; gap: 8px; padding: 6px 10px; background: #3f51b5; color: white; }
		#toolbar .title { font-size: 18px; margin-right: auto; }
		#layout { display: flex; height: calc(100% - 44px); }
		.drawer { width: 300px; overflow-y: auto; padding: 8px; border-right: 1px solid #ccc; }
		.drawer.hidden { display: none; }
		#main { flex: 1; position: relative; background: lightgrey; display: flex; align-items: center; justify-content: center; }
		#main img { max-width: 100%; max-height: 100%; }
		#error { position: absolute; top: 0; left: 0; right: 0; background: #f8d7da; color: #721c24; padding: 6px; display: none; }
		#options { position: absolute; top: 8px; right: 8px; background: white; padding: 8px; border-radius: 4px; }
		#options label { display: block; margin: 4px 0; }
		table { border-collapse: collapse; width: 100%; font-size: 12px; }
		td { border-bottom: 1px solid #eee; padding: 2px 4px; vertical-align: top; word-break: break-all; }
		.coord { border: 1px solid #ddd; margin: 4px 0; padding: 4px; }
		.coord h4 { margin: 0; cursor: pointer; }
		.coord input { width: 70px; }
		.var { cursor: pointer; padding: 2px 4px; }
		.var.active { background: #c5cae9; }
		.loading { font-style: italic; }
	</style>
</head>
<body>
<div id="toolbar">
	<button id="toggle-main" title="Datasets">&#9776;</button>
	<span class="title">Pan3D Viewer</span>
	<span id="loading" class="loading"></span>
	<span id="size"></span>
	<button id="apply">Apply &amp; Render</button>
	<button id="export">Export</button>
	<input id="import-file" type="file" accept=".json">
	<span id="action-message"></span>
	<button id="toggle-axis" title="Axes">&#8645;</button>
</div>
<div id="layout">
	<div id="main-drawer" class="drawer hidden">
		<label>Choose a dataset
			<select id="dataset"></select>
		</label>
		<div><a id="more-info" target="_blank">More information about this dataset</a></div>
		<h4 id="arrays-title">Available Arrays</h4>
		<div id="no-vars">No data variables found.</div>
		<div id="vars"></div>
		<h4>Data Attributes</h4>
		<table id="attrs"></table>
	</div>
	<div id="axis-drawer" class="drawer hidden">
		<div id="time"></div>
		<div id="coords"></div>
	</div>
	<div id="main">
		<div id="error"></div>
		<img id="frame" alt="">
		<div id="options">
			<label>Colormap <select id="colormap"></select></label>
			<label><input id="transparency" type="checkbox"> Transparency</label>
			<label>Function <select id="transparency-function"></select></label>
			<label><input id="warp" type="checkbox"> Scalar warp</label>
			<label>X scale <input id="xscale" type="number" min="1" style="width:50px"></label>
			<label>Y scale <input id="yscale" type="number" min="1" style="width:50px"></label>
			<label>Z scale <input id="zscale" type="number" min="1" style="width:50px"></label>
		</div>
	</div>
</div>
<footer style="display:none">Pan3D {{.Version}}</footer>
<script>
const state = {};
const ws = new WebSocket((location.protocol === "https:" ? "wss://" : "ws://") + location.host + "/ws");
const $ = id => document.getElementById(id);

function set(changes) { ws.send(JSON.stringify({type: "state", changes: changes})); }
function trigger(name, ...args) { ws.send(JSON.stringify({type: "trigger", name: name, args: args})); }
function el(tag, props, ...children) {
	const e = document.createElement(tag);
	Object.assign(e, props || {});
	children.forEach(c => e.append(c));
	return e;
}
function options(select, items, value) {
	select.replaceChildren(...items.map(i => el("option", {value: i.value, text: i.text})));
	select.value = value == null ? "" : value;
}

ws.onmessage = ev => {
	const m = JSON.parse(ev.data);
	if (m.type === "error") { $("error").textContent = m.message; $("error").style.display = "block"; return; }
	Object.assign(state, m.changes);
	render();
};

function render() {
	$("main-drawer").classList.toggle("hidden", !state.ui_main_drawer);
	$("axis-drawer").classList.toggle("hidden", !state.ui_axis_drawer);
	$("loading").textContent = state.ui_loading ? "Loading..." : (state.ui_unapplied_changes ? "Unapplied changes" : "");
	$("size").textContent = state.da_size || "";
	$("action-message").textContent = state.ui_action_message || "";
	$("error").textContent = state.ui_error_message || "";
	$("error").style.display = state.ui_error_message ? "block" : "none";

	const datasets = [{value: "", text: ""}].concat((state.available_datasets || []).map(d => ({value: d.url, text: d.name})));
	options($("dataset"), datasets, state.dataset_path);
	$("more-info").href = state.ui_more_info_link || "";
	$("more-info").style.display = state.ui_more_info_link ? "" : "none";
	$("arrays-title").style.display = state.dataset_ready ? "" : "none";
	$("no-vars").style.display = state.dataset_ready && state.no_da_vars ? "" : "none";
	$("vars").replaceChildren(...(state.da_vars || []).map(v => el("div", {
		className: "var" + (v.name === state.da_active ? " active" : ""),
		textContent: v.name,
		onclick: () => set({da_active: v.name}),
	})));
	const attrs = (state.da_active && state.da_vars_attrs && state.da_vars_attrs[state.da_active]) || state.da_attrs || [];
	$("attrs").replaceChildren(...attrs.map(a => el("tr", {}, el("td", {textContent: a.key}), el("td", {textContent: a.value}))));

	const time = $("time");
	time.replaceChildren();
	if (state.da_t) {
		const slider = el("input", {type: "range", min: 0, max: state.da_t_max, value: state.da_t_index});
		slider.onchange = () => set({da_t_index: Number(slider.value)});
		time.append(el("div", {textContent: "Time: " + (state.ui_current_time_string || "")}), slider);
	}

	const axes = {da_x: "X", da_y: "Y", da_z: "Z", da_t: "T"};
	$("coords").replaceChildren(...(state.da_coordinates || []).map(c => {
		const current = Object.keys(axes).find(k => state[k] === c.name) || "";
		const pick = el("select", {});
		options(pick, [{value: "", text: "none"}].concat(Object.keys(axes).map(k => ({value: k, text: axes[k]}))), current);
		pick.onchange = () => trigger("select_axis", c.name, current, pick.value || "undefined");
		const box = el("div", {className: "coord"}, el("h4", {textContent: c.name, onclick: () => trigger("toggle_expansion", c.name)}), pick);
		if ((state.ui_expanded_coordinates || []).includes(c.name)) {
			["start", "stop", "step"].forEach(attr => {
				const input = el("input", {value: c[attr], disabled: attr !== "step" && !c.numeric});
				input.onchange = () => trigger("change_slice", c.name, attr, input.value);
				box.append(el("label", {}, " " + attr + " ", input));
			});
			box.append(el("table", {}, ...(c.attrs || []).map(a => el("tr", {}, el("td", {textContent: a.key}), el("td", {textContent: a.value})))));
		}
		return box;
	}));

	options($("colormap"), (state.colormaps || []).map(c => ({value: c, text: c})), state.render_colormap);
	options($("transparency-function"), (state.transparency_functions || []).map(c => ({value: c, text: c})), state.render_transparency_function);
	$("transparency").checked = !!state.render_transparency;
	$("warp").checked = !!state.render_scalar_warp;
	$("xscale").value = state.render_x_scale;
	$("yscale").value = state.render_y_scale;
	$("zscale").value = state.render_z_scale;

	if (state.ui_frame && $("frame").dataset.key !== state.ui_frame) {
		$("frame").dataset.key = state.ui_frame;
		$("frame").src = "/frame.png?key=" + encodeURIComponent(state.ui_frame);
	}
	if (state.state_export) {
		const a = el("a", {href: URL.createObjectURL(new Blob([JSON.stringify(state.state_export, null, 2)], {type: "application/json"})), download: "pan3d_state.json"});
		a.click();
		state.state_export = null;
	}
}

$("toggle-main").onclick = () => set({ui_main_drawer: !state.ui_main_drawer});
$("toggle-axis").onclick = () => set({ui_axis_drawer: !state.ui_axis_drawer});
$("apply").onclick = () => trigger("apply");
$("export").onclick = () => set({ui_action_name: "Export"});
$("import-file").onchange = ev => {
	const f = ev.target.files[0];
	if (f) f.text().then(text => trigger("import_config", text));
};
$("dataset").onchange = () => {
	const d = (state.available_datasets || []).find(d => d.url === $("dataset").value);
	set({dataset_source: d ? d.source : "default", dataset_path: $("dataset").value || null});
};
$("colormap").onchange = () => set({render_colormap: $("colormap").value});
$("transparency").onchange = () => set({render_transparency: $("transparency").checked});
$("transparency-function").onchange = () => set({render_transparency_function: $("transparency-function").value});
$("warp").onchange = () => set({render_scalar_warp: $("warp").checked});
["x", "y", "z"].forEach(a => $(a + "scale").onchange = () => set({["render_" + a + "_scale"]: Number($(a + "scale").value)}));
</script>
</body>
</html>`

package dashboard

const pageHTML = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="UTF-8">
<meta name="viewport" content="width=device-width, initial-scale=1.0">
<title>MMSS Dashboard</title>
<script src="https://cdn.plot.ly/plotly-2.35.2.min.js"></script>
<style>
*,*::before,*::after{box-sizing:border-box;margin:0;padding:0}
:root{
  --bg:#0f1117;--bg-card:#161b22;--bg-input:#0d1117;--border:#30363d;
  --text:#e1e4e8;--text-muted:#8b949e;--primary:#58a6ff;
  --green:#3fb950;--red:#f85149;--yellow:#d29922;--radius:8px;
}
body{font-family:-apple-system,BlinkMacSystemFont,"Segoe UI",Helvetica,Arial,sans-serif;background:var(--bg);color:var(--text);line-height:1.5}
header{background:var(--bg-card);border-bottom:1px solid var(--border);padding:12px 24px}
header h1{font-size:20px}
.container{max-width:1400px;margin:0 auto;padding:24px;display:grid;grid-template-columns:repeat(auto-fit,minmax(420px,1fr));gap:16px}
.card{background:var(--bg-card);border:1px solid var(--border);border-radius:var(--radius);padding:16px}
.card h2{font-size:15px;margin-bottom:12px;color:var(--primary)}
.metrics{display:grid;grid-template-columns:1fr 1fr;gap:8px}
.metric{background:var(--bg-input);border-radius:4px;padding:8px}
.metric .label{font-size:11px;color:var(--text-muted)}
.metric .value{font-family:monospace;font-size:14px}
label{display:block;font-size:12px;color:var(--text-muted);margin-top:8px}
input,select,textarea{width:100%;background:var(--bg-input);color:var(--text);border:1px solid var(--border);border-radius:4px;padding:6px;font-family:monospace}
textarea{min-height:80px}
button{margin-top:10px;background:var(--primary);color:#0f1117;border:none;border-radius:4px;padding:6px 14px;font-weight:600;cursor:pointer}
table{width:100%;border-collapse:collapse;font-size:12px;font-family:monospace}
th,td{text-align:left;padding:4px 6px;border-bottom:1px solid var(--border)}
.status{font-size:12px;margin-top:8px;min-height:18px;color:var(--text-muted);white-space:pre-wrap}
.st-Completed{color:var(--green)}.st-Failed{color:var(--red)}.st-InProgress,.st-Pending{color:var(--yellow)}
pre{background:var(--bg-input);border-radius:4px;padding:8px;font-size:11px;max-height:360px;overflow:auto}
#plot{height:420px}
.hidden{display:none}
</style>
</head>
<body>
<header><h1>MMSS Geometric Task Dashboard</h1></header>
<div class="container">

<div class="card">
  <h2>Metrics</h2>
  <div class="metrics">
    <div class="metric"><div class="label">emergent_electron_mass</div><div class="value" id="m-mass">-</div></div>
    <div class="metric"><div class="label">fine_structure_constant</div><div class="value" id="m-alpha">-</div></div>
    <div class="metric"><div class="label">quaternion_coherence</div><div class="value" id="m-coherence">-</div></div>
    <div class="metric"><div class="label">topological_winding</div><div class="value" id="m-winding">-</div></div>
    <div class="metric"><div class="label">zitterbewegung_entropy</div><div class="value" id="m-entropy">-</div></div>
    <div class="metric"><div class="label">v / s / q</div><div class="value" id="m-vsq">-</div></div>
  </div>
  <div class="status" id="metrics-status"></div>
</div>

<div class="card">
  <h2>Submit visualization task</h2>
  <label for="viz-type">Visualization type</label>
  <select id="viz-type">
    <option value="asymmetry">EQGFT polarization asymmetry</option>
    <option value="hopfion">Hopfion soliton field</option>
    <option value="script">Custom Python script</option>
  </select>
  <label for="task-name">Task name</label>
  <input id="task-name" value="dashboard task">
  <div id="form-asymmetry">
    <label for="kappa">kappa</label><input id="kappa" type="number" step="0.01" value="0.2">
    <label for="n-events">n_events</label><input id="n-events" type="number" value="50000">
    <label for="sys-error">systematic_error</label><input id="sys-error" type="number" step="0.0001" value="0.0001">
  </div>
  <div id="form-hopfion" class="hidden">
    <label for="grid-size">grid_size</label><input id="grid-size" type="number" value="12">
    <label for="radius">radius</label><input id="radius" type="number" step="0.1" value="1.0">
  </div>
  <div id="form-script" class="hidden">
    <label for="script">script</label>
    <textarea id="script">import json
print(json.dumps({"answer": 42}))</textarea>
  </div>
  <button id="submit-task">Submit</button>
  <div class="status" id="task-status"></div>
</div>

<div class="card">
  <h2>Tasks</h2>
  <table><thead><tr><th>task_id</th><th>status</th></tr></thead><tbody id="task-rows"></tbody></table>
  <div class="status" id="tasks-status"></div>
</div>

<div class="card">
  <h2>Hopfion field q_x</h2>
  <div id="plot"></div>
  <div class="status" id="plot-status"></div>
</div>

<div class="card">
  <h2>Visualization packet</h2>
  <button id="load-packet">Refresh packet</button>
  <pre id="packet">{}</pre>
  <div class="status" id="packet-status"></div>
</div>

<div class="card">
  <h2>LLM planner</h2>
  <label for="llm-query">Query</label>
  <textarea id="llm-query">Measure the polarization asymmetry with higher statistics</textarea>
  <label for="llm-context">Context (JSON, optional)</label>
  <textarea id="llm-context"></textarea>
  <button id="llm-ask">Query</button>
  <button id="llm-plan">Plan EQGFT task</button>
  <pre id="llm-output">{}</pre>
  <div class="status" id="llm-status"></div>
</div>

<div class="card">
  <h2>Research campaign</h2>
  <label for="camp-goal">Goal</label><input id="camp-goal" value="Reach unit winding">
  <label for="camp-target">optimization_target</label>
  <select id="camp-target">
    <option>topological_winding</option><option>quaternion_coherence</option>
    <option>emergent_electron_mass</option><option>fine_structure_constant</option>
    <option>v_geometric</option><option>s_geometric</option><option>q_oscillator</option>
  </select>
  <label for="camp-steps">max_steps</label><input id="camp-steps" type="number" value="5">
  <label for="camp-value">target_value (optional)</label><input id="camp-value" type="number" step="any">
  <button id="camp-run">Run campaign</button>
  <pre id="camp-output">{}</pre>
  <div class="status" id="camp-status"></div>
</div>

</div>
<script>
const $ = id => document.getElementById(id);
let pollTimer = null;

async function api(method, path, body) {
  const opts = {method: method, headers: {}};
  if (body !== undefined) {
    opts.headers['Content-Type'] = 'application/json';
    opts.body = JSON.stringify(body);
  }
  const res = await fetch(path, opts);
  const text = await res.text();
  if (!res.ok) {
    throw new Error(res.status + ': ' + text.trim());
  }
  return text ? JSON.parse(text) : null;
}

function fmt(v) {
  return typeof v === 'number' ? v.toPrecision(10) : String(v);
}

async function loadMetrics() {
  try {
    const m = await api('GET', '/api/metrics');
    $('m-mass').textContent = fmt(m.emergent_electron_mass);
    $('m-alpha').textContent = fmt(m.fine_structure_constant);
    $('m-coherence').textContent = fmt(m.quaternion_coherence);
    $('m-winding').textContent = fmt(m.topological_winding);
    $('m-entropy').textContent = fmt(m.zitterbewegung_entropy);
    $('m-vsq').textContent = [m.v_geometric, m.s_geometric, m.q_oscillator].map(x => x.toFixed(5)).join(' / ');
    $('metrics-status').textContent = '';
  } catch (e) {
    $('metrics-status').textContent = e.message;
  }
}

async function loadTasks() {
  try {
    const tasks = await api('GET', '/api/tasks');
    const rows = $('task-rows');
    rows.innerHTML = '';
    for (const t of tasks || []) {
      const tr = document.createElement('tr');
      const id = document.createElement('td');
      id.textContent = t.task_id;
      const st = document.createElement('td');
      st.textContent = t.status;
      st.className = 'st-' + t.status;
      tr.appendChild(id);
      tr.appendChild(st);
      rows.appendChild(tr);
    }
    $('tasks-status').textContent = '';
  } catch (e) {
    $('tasks-status').textContent = e.message;
  }
}

async function loadPacket() {
  try {
    const resp = await api('GET', '/api/visualization/packet');
    $('packet').textContent = JSON.stringify(resp.packet, null, 2);
    $('packet-status').textContent = '';
  } catch (e) {
    $('packet-status').textContent = e.message;
  }
}

async function loadHopfion() {
  try {
    const field = await api('GET', '/api/visualization/hopfion-field');
    if (!field) {
      $('plot-status').textContent = 'No hopfion field generated yet';
      return;
    }
    const q = field.q_x;
    Plotly.react('plot', [{
      type: 'scatter3d', mode: 'markers',
      x: q.map(p => p[1]), y: q.map(p => p[2]), z: q.map(p => p[3]),
      marker: {size: 2, color: q.map(p => p[0]), colorscale: 'Viridis'}
    }], {
      paper_bgcolor: '#161b22', font: {color: '#e1e4e8'},
      margin: {l: 0, r: 0, t: 0, b: 0}
    });
    $('plot-status').textContent = 'grid ' + field.grid_size + '^3, n_h=' + field.n_h;
  } catch (e) {
    $('plot-status').textContent = e.message;
  }
}

function refreshAll() {
  loadMetrics();
  loadTasks();
  loadPacket();
  loadHopfion();
}

function showForm() {
  const kind = $('viz-type').value;
  for (const k of ['asymmetry', 'hopfion', 'script']) {
    $('form-' + k).classList.toggle('hidden', k !== kind);
  }
}

function buildTask() {
  const kind = $('viz-type').value;
  const name = $('task-name').value;
  if (kind === 'asymmetry') {
    return {
      task_name: name, geometric_operator: 'SimulateEqgftAsymmetry', target_module: 'eqgft',
      parameters: {
        kappa: parseFloat($('kappa').value),
        n_events: parseInt($('n-events').value, 10),
        systematic_error: parseFloat($('sys-error').value)
      },
      expected_output_metric: 'polarization_asymmetry'
    };
  }
  if (kind === 'hopfion') {
    return {
      task_name: name, geometric_operator: 'GenerateHopfionField', target_module: 'eqgft',
      parameters: {grid_size: parseInt($('grid-size').value, 10), radius: parseFloat($('radius').value)},
      expected_output_metric: 'hopfion_field'
    };
  }
  return {
    task_name: name, geometric_operator: 'CustomPythonScript', target_module: 'python',
    parameters: {script: $('script').value},
    expected_output_metric: 'custom_metrics'
  };
}

function pollTask(id) {
  if (pollTimer) clearInterval(pollTimer);
  pollTimer = setInterval(async () => {
    try {
      const t = await api('GET', '/api/tasks/' + id);
      $('task-status').textContent = id + ': ' + t.status + (t.error ? '\n' + t.error : '');
      if (t.status === 'Completed' || t.status === 'Failed') {
        clearInterval(pollTimer);
        pollTimer = null;
        refreshAll();
      }
    } catch (e) {
      clearInterval(pollTimer);
      pollTimer = null;
      $('task-status').textContent = e.message;
    }
  }, 1000);
}

async function submitTask() {
  try {
    const resp = await api('POST', '/api/tasks', buildTask());
    $('task-status').textContent = resp.task_id + ': ' + resp.status;
    loadTasks();
    pollTask(resp.task_id);
  } catch (e) {
    $('task-status').textContent = e.message;
  }
}

function llmBody() {
  const raw = $('llm-context').value.trim();
  const body = {query: $('llm-query').value};
  if (raw) body.context = JSON.parse(raw);
  return body;
}

async function askLLM(path) {
  try {
    const cmd = await api('POST', path, llmBody());
    $('llm-output').textContent = JSON.stringify(cmd, null, 2);
    $('llm-status').textContent = '';
  } catch (e) {
    $('llm-status').textContent = e.message;
  }
}

async function runCampaign() {
  $('camp-status').textContent = 'running...';
  try {
    const body = {
      goal: $('camp-goal').value,
      optimization_target: $('camp-target').value,
      max_steps: parseInt($('camp-steps').value, 10)
    };
    const tv = $('camp-value').value;
    if (tv !== '') body.target_value = parseFloat(tv);
    const resp = await api('POST', '/api/llm/research-campaign', body);
    $('camp-output').textContent = JSON.stringify(resp, null, 2);
    $('camp-status').textContent = 'completed ' + resp.completed_steps + ' steps, progress ' + resp.goal_progress.toFixed(4);
    refreshAll();
  } catch (e) {
    $('camp-status').textContent = e.message;
  }
}

$('viz-type').addEventListener('change', showForm);
$('submit-task').addEventListener('click', submitTask);
$('load-packet').addEventListener('click', loadPacket);
$('llm-ask').addEventListener('click', () => askLLM('/api/llm/query'));
$('llm-plan').addEventListener('click', () => askLLM('/api/llm/plan-eqgft-task'));
$('camp-run').addEventListener('click', runCampaign);
refreshAll();
</script>
</body>
</html>
`
